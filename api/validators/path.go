package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// PurchasePath is the addressing shared by every payment and redirect route.
type PurchasePath struct {
	PurchasableType string `json:"purchasableType" validate:"required,max=32"`
	PurchasableID   string `json:"purchasableId" validate:"required,max=128,printascii,excludesall=/?#"`
	ReservationID   string `json:"reservationId" validate:"required,max=64,printascii,excludesall=/?#"`
}

// idParams are the URL param names that can carry the purchasable identifier,
// in lookup order. Typed routes use {purchasableId}; the event and
// subscription page routes and the legacy event API name it after the kind.
var idParams = []string{"purchasableId", "eventShortName", "subscriptionId", "eventName"}

// ParsePurchasePath reads the chi URL params. Routes without a type segment
// pass the kind as fallbackType.
func ParsePurchasePath(r *http.Request, fallbackType string) (PurchasePath, error) {
	p := PurchasePath{
		PurchasableType: strings.TrimSpace(chi.URLParam(r, "purchasableType")),
		ReservationID:   strings.TrimSpace(chi.URLParam(r, "reservationId")),
	}
	if p.PurchasableType == "" {
		p.PurchasableType = fallbackType
	}
	for _, key := range idParams {
		if p.PurchasableID != "" {
			break
		}
		p.PurchasableID = strings.TrimSpace(chi.URLParam(r, key))
	}
	if err := Struct(&p); err != nil {
		return PurchasePath{}, err
	}
	return p, nil
}
