package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const (
	maxReferenceLen = 40
	maxNoteLen      = 500
)

// PaymentCreateParams describes one reservation charge. ReservationID is
// stored as the Square reference id so webhooks can be matched back.
type PaymentCreateParams struct {
	AmountMinor    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	ReservationID  string
	Description    string
	BuyerEmail     string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey,
		SourceID:          p.SourceID,
		LocationID:        optional(p.LocationID, 0),
		ReferenceID:       optional(p.ReservationID, maxReferenceLen),
		Note:              optional(p.Description, maxNoteLen),
		BuyerEmailAddress: optional(p.BuyerEmail, 0),
	}
	if p.AmountMinor > 0 {
		amount := p.AmountMinor
		currency := sq.Currency(strings.ToUpper(strings.TrimSpace(p.Currency)))
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: &currency}
	}
	return req
}

// optional trims value and returns nil when blank. A positive limit cuts
// the value to Square's field length.
func optional(value string, limit int) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return &value
}
