package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/db"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox/payloads"
)

// Confirmation sources recorded on outbox events.
const (
	SourceForceCheck = "force-check"
	SourceWebhook    = "webhook"
	SourceReconcile  = "reconcile"
)

var confirmableStatuses = []enums.ReservationStatus{
	enums.ReservationPending,
	enums.ReservationExternalProcessingPayment,
	enums.ReservationWaitingExternalConfirmation,
}

// Confirmation describes a provider-reported outcome for a reservation.
type Confirmation struct {
	ReservationID string
	Method        enums.PaymentMethod
	Provider      string
	GatewayID     string
	Source        string
	Reason        string
	// Superseded marks a payment whose transaction row was replaced when the
	// buyer switched method. The reservation is confirmed, the current row is left alone.
	Superseded bool
}

// Confirmer applies provider outcomes to reservations and transactions. Every
// transition and its outbox event commit together.
type Confirmer struct {
	tx           db.TxRunner
	reservations reservations.Repository
	transactions TransactionRepository
	outbox       outbox.Emitter
	logg         *logger.Logger
	now          func() time.Time
}

func NewConfirmer(tx db.TxRunner, reservationRepo reservations.Repository, transactions TransactionRepository, emitter outbox.Emitter, logg *logger.Logger) (*Confirmer, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if reservationRepo == nil {
		return nil, errors.New("reservations repository required")
	}
	if transactions == nil {
		return nil, errors.New("transactions repository required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Confirmer{
		tx:           tx,
		reservations: reservationRepo,
		transactions: transactions,
		outbox:       emitter,
		logg:         logg,
		now:          time.Now,
	}, nil
}

// Confirm moves an awaiting reservation to COMPLETE. It reports false when the
// reservation had already left the awaiting states, which makes repeated
// confirmations from different channels harmless.
func (c *Confirmer) Confirm(ctx context.Context, in Confirmation) (bool, error) {
	var changed bool
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resRepo := c.reservations.WithTx(tx)
		projection, err := resRepo.FindStatusAndValidation(ctx, in.ReservationID)
		if err != nil {
			return err
		}
		if projection == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}

		changed, err = resRepo.UpdateStatusIf(ctx, in.ReservationID, confirmableStatuses, enums.ReservationComplete)
		if err != nil || !changed {
			return err
		}
		if !in.Superseded {
			if _, err := c.transactions.WithTx(tx).UpdateStatus(ctx, in.ReservationID, enums.TransactionSucceeded, nil); err != nil {
				return err
			}
		}

		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationPaymentConfirmed,
			AggregateType: enums.AggregateReservation,
			AggregateID:   in.ReservationID,
			Actor:         &outbox.ActorRef{Source: in.Source},
			Data: payloads.ReservationPaymentConfirmedEvent{
				ReservationID:   in.ReservationID,
				PurchasableType: projection.PurchaseContextType.String(),
				PurchasableID:   projection.PurchaseContextID,
				PaymentMethod:   in.Method.String(),
				Provider:        in.Provider,
				GatewayID:       in.GatewayID,
				PreviousStatus:  projection.Status.Raw(),
				Source:          in.Source,
				ConfirmedAt:     c.now().UTC(),
			},
		})
	})
	if err != nil {
		return false, err
	}
	if changed && c.logg != nil {
		logCtx := c.logg.WithReservation(ctx, in.ReservationID)
		logCtx = c.logg.WithFields(logCtx, map[string]any{"provider": in.Provider, "source": in.Source})
		c.logg.Info(logCtx, "reservation payment confirmed")
	}
	return changed, nil
}

// MarkProcessing records that the provider accepted the payment but has not settled it.
func (c *Confirmer) MarkProcessing(ctx context.Context, in Confirmation) (bool, error) {
	var changed bool
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		changed, err = c.reservations.WithTx(tx).UpdateStatusIf(ctx, in.ReservationID,
			[]enums.ReservationStatus{enums.ReservationPending}, enums.ReservationExternalProcessingPayment)
		if err != nil || !changed {
			return err
		}
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationPaymentProcessing,
			AggregateType: enums.AggregateReservation,
			AggregateID:   in.ReservationID,
			Actor:         &outbox.ActorRef{Source: in.Source},
			Data: payloads.ReservationPaymentProcessingEvent{
				ReservationID: in.ReservationID,
				Provider:      in.Provider,
				GatewayID:     in.GatewayID,
			},
		})
	})
	return changed, err
}

// RecordFailure marks the pending transaction failed. The reservation keeps
// its status so the buyer can retry with another method.
func (c *Confirmer) RecordFailure(ctx context.Context, in Confirmation) (bool, error) {
	var changed bool
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := c.transactions.WithTx(tx)
		var reason *string
		if in.Reason != "" {
			reason = &in.Reason
		}
		var err error
		changed, err = txRepo.UpdateStatus(ctx, in.ReservationID, enums.TransactionFailed, reason)
		if err != nil || !changed {
			return err
		}
		row, err := txRepo.FindByReservation(ctx, in.ReservationID)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentTransactionFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   row.ID.String(),
			Actor:         &outbox.ActorRef{Source: in.Source},
			Data: payloads.PaymentTransactionFailedEvent{
				TransactionID: row.ID.String(),
				ReservationID: in.ReservationID,
				Provider:      in.Provider,
				Reason:        in.Reason,
			},
		})
	})
	return changed, err
}
