package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		price    string
		currency string
		want     int64
	}{
		{"25.00", "EUR", 2500},
		{"19.995", "usd", 2000},
		{"0.01", "CHF", 1},
		{"1500", "JPY", 1500},
	}
	for _, tc := range cases {
		got, err := MinorUnits(&models.Reservation{FinalPrice: decimal.RequireFromString(tc.price), Currency: tc.currency})
		require.NoError(t, err, tc.price)
		assert.Equal(t, tc.want, got, tc.price)
	}

	_, err := MinorUnits(&models.Reservation{FinalPrice: decimal.Zero, Currency: "EUR"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRegistryRejectsInvalidEntries(t *testing.T) {
	_, err := NewRegistry(map[enums.PaymentMethod]Provider{"PAYPAL": &fakeProvider{name: "x"}})
	assert.Error(t, err)

	_, err = NewRegistry(map[enums.PaymentMethod]Provider{enums.PaymentMethodOnSite: nil})
	assert.Error(t, err)

	reg, err := NewRegistry(map[enums.PaymentMethod]Provider{
		enums.PaymentMethodOnSite:     &fakeProvider{name: "offline"},
		enums.PaymentMethodCreditCard: &fakeProvider{name: "card"},
	})
	require.NoError(t, err)
	assert.Equal(t, []enums.PaymentMethod{enums.PaymentMethodCreditCard, enums.PaymentMethodOnSite}, reg.Methods())
	_, ok := reg.Lookup(enums.PaymentMethodExternal)
	assert.False(t, ok)
}
