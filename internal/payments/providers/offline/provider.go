package offline

import (
	"context"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// Name is the provider label stored on transactions.
const Name = "offline"

// Instructions are shown to buyers paying by bank transfer.
type Instructions struct {
	IBAN   string
	Holder string
}

// Provider covers methods settled outside any gateway. Status is read from
// the reservation itself, which staff move to COMPLETE once money arrives.
type Provider struct {
	instructions Instructions
}

func New(instructions Instructions) *Provider {
	return &Provider{instructions: instructions}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Initialize(_ context.Context, req payments.InitRequest) (*payments.Token, error) {
	fields := map[string]string{"reference": req.Reservation.ID}
	if req.Method == enums.PaymentMethodBankTransfer {
		if p.instructions.IBAN != "" {
			fields["iban"] = p.instructions.IBAN
		}
		if p.instructions.Holder != "" {
			fields["holder"] = p.instructions.Holder
		}
	}
	if !req.Reservation.FinalPrice.IsZero() {
		fields["amount"] = req.Reservation.FinalPrice.StringFixed(2)
		fields["currency"] = req.Reservation.Currency
	}
	return &payments.Token{
		Provider: Name,
		Fields:   fields,
	}, nil
}

// CheckStatus never reports a failure: an offline payment that has not
// arrived yet is still pending.
func (p *Provider) CheckStatus(_ context.Context, req payments.StatusRequest) (payments.PaymentResult, error) {
	if req.Reservation != nil && req.Reservation.Status == enums.ReservationComplete {
		return payments.Successful(""), nil
	}
	return payments.Pending(""), nil
}
