package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	stripeprovider "github.com/angelmondragon/boxoffice-backend/internal/payments/providers/stripe"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
)

type transactionFinder interface {
	FindByProviderReference(ctx context.Context, provider, reference string) (*models.PaymentTransaction, error)
}

type paymentConfirmer interface {
	Confirm(ctx context.Context, in payments.Confirmation) (bool, error)
	MarkProcessing(ctx context.Context, in payments.Confirmation) (bool, error)
	RecordFailure(ctx context.Context, in payments.Confirmation) (bool, error)
}

type ServiceParams struct {
	Transactions transactionFinder
	Confirmer    paymentConfirmer
	Logger       *logger.Logger
}

// Service applies PaymentIntent lifecycle events to reservations.
type Service struct {
	transactions transactionFinder
	confirmer    paymentConfirmer
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	}
	if params.Confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmer required")
	}
	return &Service{
		transactions: params.Transactions,
		confirmer:    params.Confirmer,
		logg:         params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed:
	default:
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	row, err := s.transactions.FindByProviderReference(ctx, stripeprovider.Name, intent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if row == nil {
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			return s.confirmSuperseded(ctx, &intent)
		}
		// Intents created outside this service (or already purged) are acknowledged.
		s.logInfo(ctx, intent.ID, "stripe event for unknown payment intent ignored")
		return nil
	}

	in := payments.Confirmation{
		ReservationID: row.ReservationID,
		Method:        row.Method,
		Provider:      stripeprovider.Name,
		GatewayID:     intent.ID,
		Source:        payments.SourceWebhook,
	}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		_, err = s.confirmer.Confirm(ctx, in)
	case stripe.EventTypePaymentIntentProcessing:
		_, err = s.confirmer.MarkProcessing(ctx, in)
	case stripe.EventTypePaymentIntentPaymentFailed:
		in.Reason = failureReason(&intent)
		_, err = s.confirmer.RecordFailure(ctx, in)
	}
	return err
}

// confirmSuperseded settles an intent whose transaction row was replaced after
// the buyer switched method. The intent metadata still names the reservation.
func (s *Service) confirmSuperseded(ctx context.Context, intent *stripe.PaymentIntent) error {
	reservationID := strings.TrimSpace(intent.Metadata["reservation_id"])
	if reservationID == "" {
		s.logInfo(ctx, intent.ID, "stripe event for unknown payment intent ignored")
		return nil
	}
	method, ok := enums.LookupPaymentMethod(intent.Metadata["payment_method"])
	if !ok {
		method = enums.PaymentMethodCreditCard
	}
	_, err := s.confirmer.Confirm(ctx, payments.Confirmation{
		ReservationID: reservationID,
		Method:        method,
		Provider:      stripeprovider.Name,
		GatewayID:     intent.ID,
		Source:        payments.SourceWebhook,
		Superseded:    true,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logInfo(ctx, intent.ID, "stripe event for unknown reservation ignored")
		return nil
	}
	if err == nil {
		s.logInfo(ctx, intent.ID, "superseded payment intent settled")
	}
	return err
}

func (s *Service) logInfo(ctx context.Context, intentID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_intent", intentID), msg)
}

func failureReason(intent *stripe.PaymentIntent) string {
	if intent.LastPaymentError == nil {
		return ""
	}
	if msg := strings.TrimSpace(intent.LastPaymentError.Msg); msg != "" {
		return msg
	}
	return string(intent.LastPaymentError.Code)
}
