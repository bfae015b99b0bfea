package offline

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

func TestInitializeBankTransferCarriesInstructions(t *testing.T) {
	provider := New(Instructions{IBAN: "DE89370400440532013000", Holder: "BoxOffice GmbH"})
	token, err := provider.Initialize(context.Background(), payments.InitRequest{
		Reservation: &models.Reservation{ID: "res-1", FinalPrice: decimal.RequireFromString("10.5"), Currency: "EUR"},
		Method:      enums.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, "res-1", token.Fields["reference"])
	assert.Equal(t, "DE89370400440532013000", token.Fields["iban"])
	assert.Equal(t, "10.50", token.Fields["amount"])
}

func TestInitializeOnSiteOmitsBankDetails(t *testing.T) {
	provider := New(Instructions{IBAN: "DE89370400440532013000"})
	token, err := provider.Initialize(context.Background(), payments.InitRequest{
		Reservation: &models.Reservation{ID: "res-1", Currency: "EUR"},
		Method:      enums.PaymentMethodOnSite,
	})
	require.NoError(t, err)
	assert.NotContains(t, token.Fields, "iban")
}

func TestCheckStatusNeverFails(t *testing.T) {
	provider := New(Instructions{})
	statuses := map[enums.ReservationStatus]enums.PaymentResultType{
		enums.ReservationComplete:               enums.PaymentResultSuccessful,
		enums.ReservationOfflinePayment:         enums.PaymentResultPending,
		enums.ReservationDeferredOfflinePayment: enums.PaymentResultPending,
		enums.ReservationPending:                enums.PaymentResultPending,
		enums.ReservationStuck:                  enums.PaymentResultPending,
		enums.ReservationStatus("CANCELLED"):    enums.PaymentResultPending,
	}
	for status, want := range statuses {
		res, err := provider.CheckStatus(context.Background(), payments.StatusRequest{
			Reservation: &models.Reservation{ID: "res-1", Status: status},
		})
		require.NoError(t, err)
		assert.Equal(t, want, res.Type, status)
	}
}
