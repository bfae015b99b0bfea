package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

// PaymentMethodParam checks the {method} URL param. The raw value is returned
// so the orchestrator can still report it in its own errors.
func PaymentMethodParam(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "method"))
	if _, ok := enums.LookupPaymentMethod(raw); !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"method": SanitizeString(raw, 32)})
	}
	return raw, nil
}
