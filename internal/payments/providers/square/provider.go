package squareprovider

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	squareclient "github.com/angelmondragon/boxoffice-backend/pkg/square"
)

// Name is the provider label stored on transactions.
const Name = "square"

// SourceParam is the form field carrying the card nonce produced by the Square web SDK.
const SourceParam = "source_id"

type paymentsAPI interface {
	CreatePayment(ctx context.Context, params squareclient.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// Provider serves EXTERNAL payments through the Square Payments API.
type Provider struct {
	api paymentsAPI
}

func New(api paymentsAPI) (*Provider, error) {
	if api == nil {
		return nil, errors.New("square client required")
	}
	return &Provider{api: api}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Initialize(ctx context.Context, req payments.InitRequest) (*payments.Token, error) {
	sourceID := strings.TrimSpace(req.Params[SourceParam])
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required").
			WithDetails(map[string]any{"field": SourceParam})
	}
	amount, err := payments.MinorUnits(req.Reservation)
	if err != nil {
		return nil, err
	}

	payment, err := p.api.CreatePayment(ctx, squareclient.PaymentCreateParams{
		AmountMinor:    amount,
		Currency:       req.Reservation.Currency,
		SourceID:       sourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReservationID:  req.Reservation.ID,
		Description:    req.DisplayName,
		BuyerEmail:     req.Reservation.Email,
	})
	if err != nil {
		return nil, err
	}
	paymentID := stringValue(payment.GetID())
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}

	return &payments.Token{
		Provider:          Name,
		RedirectURL:       stringValue(payment.GetReceiptURL()),
		Fields:            map[string]string{"payment_id": paymentID},
		ProviderReference: paymentID,
	}, nil
}

func (p *Provider) CheckStatus(ctx context.Context, req payments.StatusRequest) (payments.PaymentResult, error) {
	if req.Transaction == nil || req.Transaction.ProviderReference == nil || *req.Transaction.ProviderReference == "" {
		return payments.PaymentResult{}, payments.ErrNoTransaction
	}
	payment, err := p.api.GetPayment(ctx, *req.Transaction.ProviderReference)
	if err != nil {
		return payments.PaymentResult{}, err
	}
	return ResultFor(payment), nil
}

// ResultFor maps a Square payment status onto the browser-facing result.
func ResultFor(payment *sq.Payment) payments.PaymentResult {
	if payment == nil {
		return payments.Pending("")
	}
	id := stringValue(payment.GetID())
	switch strings.ToUpper(stringValue(payment.GetStatus())) {
	case "COMPLETED":
		return payments.Successful(id)
	case "CANCELED":
		return payments.Failed("payment canceled", id)
	case "FAILED":
		return payments.Failed("payment failed", id)
	}
	return payments.Pending("")
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
