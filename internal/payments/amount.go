package payments

import (
	"strings"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MinorUnits converts the reservation's final price to the currency's smallest unit.
func MinorUnits(reservation *models.Reservation) (int64, error) {
	if reservation == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "reservation required")
	}
	if !reservation.FinalPrice.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "reservation has nothing to pay").
			WithDetails(map[string]any{"final_price": reservation.FinalPrice.String()})
	}
	exp := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(reservation.Currency))] {
		exp = 0
	}
	return reservation.FinalPrice.Shift(exp).Round(0).IntPart(), nil
}
