package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

var errClientNotReady = errors.New("stripe client not initialized")

// PaymentIntentParams carries what the checkout needs to open a PaymentIntent.
type PaymentIntentParams struct {
	AmountMinor    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	IdempotencyKey string
	Metadata       map[string]string
}

func (p PaymentIntentParams) toStripeParams(ctx context.Context) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountMinor),
		Currency: stripe.String(strings.ToLower(strings.TrimSpace(p.Currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if trimmed := strings.TrimSpace(p.Description); trimmed != "" {
		params.Description = stripe.String(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReceiptEmail); trimmed != "" {
		params.ReceiptEmail = stripe.String(trimmed)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx
	return params
}

// CreatePaymentIntent opens a PaymentIntent; the idempotency key makes retries safe.
func (c *Client) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if !c.ready() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errClientNotReady, "stripe create payment intent failed")
	}
	if p.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	intent, err := paymentintent.New(p.toStripeParams(ctx))
	if err != nil {
		return nil, MapError(err, "create payment intent")
	}
	return intent, nil
}

// GetPaymentIntent reads the current state of a PaymentIntent.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if !c.ready() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errClientNotReady, "stripe get payment intent failed")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, MapError(err, "get payment intent")
	}
	return intent, nil
}

// CancelPaymentIntent voids an intent the buyer abandoned. Stripe refuses to
// cancel an intent that already succeeded, which surfaces as PAYMENT_REJECTED.
func (c *Client) CancelPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if !c.ready() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errClientNotReady, "stripe cancel payment intent failed")
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = ctx
	intent, err := paymentintent.Cancel(id, params)
	if err != nil {
		return nil, MapError(err, "cancel payment intent")
	}
	return intent, nil
}

func (c *Client) ready() bool {
	return c != nil && c.apiKey != ""
}

// MapError translates Stripe API failures into domain errors. Card errors and
// other 4xx rejections become PAYMENT_REJECTED; everything else is a dependency failure.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := fmt.Sprintf("stripe %s failed", op)
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodePaymentRejected, err, msg).WithDetails(rejectionDetails(stripeErr))
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
		case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return pkgerrors.Wrap(pkgerrors.CodePaymentRejected, err, msg).WithDetails(rejectionDetails(stripeErr))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func rejectionDetails(e *stripe.Error) map[string]any {
	details := map[string]any{"provider": "stripe"}
	if e.Code != "" {
		details["reason"] = string(e.Code)
	}
	if e.DeclineCode != "" {
		details["decline_code"] = string(e.DeclineCode)
	}
	if e.Msg != "" {
		details["message"] = e.Msg
	}
	return details
}
