package stripeprovider

import (
	"context"
	"errors"
	"strings"

	stripe "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	stripeclient "github.com/angelmondragon/boxoffice-backend/pkg/stripe"
)

// Name is the provider label stored on transactions.
const Name = "stripe"

type intentAPI interface {
	CreatePaymentIntent(ctx context.Context, p stripeclient.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// Provider serves card payments through Stripe PaymentIntents.
type Provider struct {
	api intentAPI
}

func New(api intentAPI) (*Provider, error) {
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &Provider{api: api}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Initialize(ctx context.Context, req payments.InitRequest) (*payments.Token, error) {
	amount, err := payments.MinorUnits(req.Reservation)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		"reservation_id": req.Reservation.ID,
		"payment_method": req.Method.String(),
	}
	if req.PurchasableID != "" {
		metadata["purchasable_type"] = req.PurchasableType.String()
		metadata["purchasable_id"] = req.PurchasableID
	}

	intent, err := p.api.CreatePaymentIntent(ctx, stripeclient.PaymentIntentParams{
		AmountMinor:    amount,
		Currency:       req.Reservation.Currency,
		Description:    req.DisplayName,
		ReceiptEmail:   req.Reservation.Email,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}
	if intent == nil || intent.ClientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no client secret")
	}
	return &payments.Token{
		Provider:          Name,
		ClientSecret:      intent.ClientSecret,
		ProviderReference: intent.ID,
	}, nil
}

func (p *Provider) CheckStatus(ctx context.Context, req payments.StatusRequest) (payments.PaymentResult, error) {
	ref := providerReference(req.Transaction)
	if ref == "" {
		return payments.PaymentResult{}, payments.ErrNoTransaction
	}
	intent, err := p.api.GetPaymentIntent(ctx, ref)
	if err != nil {
		return payments.PaymentResult{}, err
	}
	return ResultFor(intent), nil
}

// Cancel voids the intent behind a transaction the buyer switched away from.
// An intent that already succeeded is a paid order and is never canceled.
func (p *Provider) Cancel(ctx context.Context, row *models.PaymentTransaction) error {
	ref := providerReference(row)
	if ref == "" {
		return nil
	}
	intent, err := p.api.GetPaymentIntent(ctx, ref)
	if err != nil {
		return err
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "previous card payment is already being settled").
			WithDetails(map[string]any{"status": string(intent.Status)})
	}
	_, err = p.api.CancelPaymentIntent(ctx, ref)
	return err
}

// ResultFor maps a PaymentIntent onto the browser-facing result.
func ResultFor(intent *stripe.PaymentIntent) payments.PaymentResult {
	if intent == nil {
		return payments.Pending("")
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payments.Successful(intent.ID)
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		return payments.Pending("")
	case stripe.PaymentIntentStatusRequiresAction:
		if url := redirectURL(intent); url != "" {
			return payments.Redirect(url)
		}
		return payments.Pending("")
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return payments.Failed(lastErrorMessage(intent.LastPaymentError), intent.ID)
		}
		return payments.Pending("")
	case stripe.PaymentIntentStatusCanceled:
		return payments.Failed(string(intent.CancellationReason), intent.ID)
	}
	return payments.Pending("")
}

func redirectURL(intent *stripe.PaymentIntent) string {
	if intent.NextAction == nil || intent.NextAction.RedirectToURL == nil {
		return ""
	}
	return intent.NextAction.RedirectToURL.URL
}

func lastErrorMessage(e *stripe.Error) string {
	if msg := strings.TrimSpace(e.Msg); msg != "" {
		return msg
	}
	return string(e.Code)
}

func providerReference(row *models.PaymentTransaction) string {
	if row == nil || row.ProviderReference == nil {
		return ""
	}
	return strings.TrimSpace(*row.ProviderReference)
}
