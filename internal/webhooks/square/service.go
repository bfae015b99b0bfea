package squarewebhook

import (
	"context"
	"strings"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	squareprovider "github.com/angelmondragon/boxoffice-backend/internal/payments/providers/square"
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

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of the payment object the handler reads.
type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

// HandleEvent processes Square payment lifecycle events.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil || strings.TrimSpace(payment.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	row, err := s.transactions.FindByProviderReference(ctx, squareprovider.Name, payment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if row == nil {
		return s.handleUntracked(ctx, payment)
	}

	in := payments.Confirmation{
		ReservationID: row.ReservationID,
		Method:        row.Method,
		Provider:      squareprovider.Name,
		GatewayID:     payment.ID,
		Source:        payments.SourceWebhook,
	}
	switch strings.ToUpper(payment.Status) {
	case "COMPLETED":
		_, err = s.confirmer.Confirm(ctx, in)
	case "APPROVED":
		_, err = s.confirmer.MarkProcessing(ctx, in)
	case "CANCELED", "FAILED":
		in.Reason = "payment " + strings.ToLower(payment.Status)
		_, err = s.confirmer.RecordFailure(ctx, in)
	}
	return err
}

// handleUntracked settles a completed payment whose transaction row was
// replaced after the buyer switched method. Anything else is acknowledged.
func (s *Service) handleUntracked(ctx context.Context, payment *SquarePayment) error {
	reservationID := strings.TrimSpace(payment.ReferenceID)
	if strings.ToUpper(payment.Status) != "COMPLETED" || reservationID == "" {
		s.logInfo(ctx, payment.ID, "square event for unknown payment ignored")
		return nil
	}
	_, err := s.confirmer.Confirm(ctx, payments.Confirmation{
		ReservationID: reservationID,
		Method:        enums.PaymentMethodExternal,
		Provider:      squareprovider.Name,
		GatewayID:     payment.ID,
		Source:        payments.SourceWebhook,
		Superseded:    true,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logInfo(ctx, payment.ID, "square event for unknown reservation ignored")
		return nil
	}
	return err
}

func (s *Service) logInfo(ctx context.Context, paymentID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "square_payment_id", paymentID), msg)
}
