package payments

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// ErrNoTransaction is returned by providers that need a stored transaction to
// answer a status query and found none.
var ErrNoTransaction = errors.New("no payment transaction for reservation")

// Token is the handshake payload the browser needs to complete a payment.
// Exactly one of ClientSecret, RedirectURL or Fields is meaningful per provider.
type Token struct {
	ReservationID string              `json:"reservation_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Provider      string              `json:"provider"`
	ClientSecret  string              `json:"client_secret,omitempty"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	Fields        map[string]string   `json:"fields,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`

	// ProviderReference is the provider-side id persisted on the transaction row.
	ProviderReference string `json:"-"`
}

// PaymentResult is the status answer returned to the browser.
type PaymentResult struct {
	Type        enums.PaymentResultType `json:"type"`
	RedirectURL string                  `json:"redirect_url,omitempty"`
	Message     string                  `json:"message,omitempty"`
	GatewayID   string                  `json:"gateway_id,omitempty"`
}

func Successful(gatewayID string) PaymentResult {
	return PaymentResult{Type: enums.PaymentResultSuccessful, GatewayID: gatewayID}
}

func Failed(message, gatewayID string) PaymentResult {
	return PaymentResult{Type: enums.PaymentResultFailed, Message: message, GatewayID: gatewayID}
}

func Pending(message string) PaymentResult {
	return PaymentResult{Type: enums.PaymentResultPending, Message: message}
}

func Redirect(url string) PaymentResult {
	return PaymentResult{Type: enums.PaymentResultRedirect, RedirectURL: url}
}

// InitRequest is what a provider receives to open a transaction.
type InitRequest struct {
	PurchasableType enums.PurchasableType
	PurchasableID   string
	DisplayName     string
	Reservation     *models.Reservation
	Method          enums.PaymentMethod
	IdempotencyKey  string
	// Params are the caller's form values, passed through untouched.
	Params map[string]string
}

// StatusRequest is what a provider receives to report on a transaction.
// Transaction is nil when nothing was stored for the requested method.
type StatusRequest struct {
	Reservation *models.Reservation
	Method      enums.PaymentMethod
	Transaction *models.PaymentTransaction
}

// Provider adapts one payment gateway to the orchestrator.
type Provider interface {
	Name() string
	Initialize(ctx context.Context, req InitRequest) (*Token, error)
	CheckStatus(ctx context.Context, req StatusRequest) (PaymentResult, error)
}

// Canceler is implemented by providers that can void an open transaction
// before the reservation moves on to another payment method.
type Canceler interface {
	Cancel(ctx context.Context, row *models.PaymentTransaction) error
}
