package validators

import (
	"net/http"

	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

const (
	maxFormBytes    = 64 << 10
	maxFormFields   = 32
	maxFormValueLen = 2048
)

// FormParams flattens a urlencoded body into single values. Only the first
// value of a repeated key is kept.
func FormParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	}
	if err := r.ParseForm(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body")
	}
	if len(r.PostForm) > maxFormFields {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many form fields").
			WithDetails(map[string]any{"max": maxFormFields})
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) == 0 {
			continue
		}
		params[SanitizeString(key, 64)] = SanitizeString(values[0], maxFormValueLen)
	}
	return params, nil
}
