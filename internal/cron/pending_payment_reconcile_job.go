package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
)

const (
	defaultReconcileStaleAge  = 10 * time.Minute
	defaultReconcileBatchSize = 100
)

type awaitingReservationLister interface {
	ListAwaitingConfirmation(ctx context.Context, staleBefore time.Time, limit int) ([]models.Reservation, error)
	MarkChecked(ctx context.Context, reservationID string, at time.Time) error
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, reservation *models.Reservation) (payments.PaymentResult, error)
}

type PendingPaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Reservations awaitingReservationLister
	Payments     paymentReconciler
	StaleAge     time.Duration
	BatchSize    int
}

// NewPendingPaymentReconcileJob re-checks reservations whose provider
// confirmation never arrived, so a lost webhook does not strand a paid order.
func NewPendingPaymentReconcileJob(params PendingPaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	staleAge := params.StaleAge
	if staleAge <= 0 {
		staleAge = defaultReconcileStaleAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &pendingPaymentReconcileJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		payments:     params.Payments,
		staleAge:     staleAge,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type pendingPaymentReconcileJob struct {
	logg         *logger.Logger
	reservations awaitingReservationLister
	payments     paymentReconciler
	staleAge     time.Duration
	batch        int
	now          func() time.Time
}

func (j *pendingPaymentReconcileJob) Name() string { return "pending-payment-reconcile" }

func (j *pendingPaymentReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.staleAge)
	rows, err := j.reservations.ListAwaitingConfirmation(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list awaiting reservations: %w", err)
	}

	var confirmed, failed, skipped int
	for i := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := &rows[i]
		result, err := j.payments.Reconcile(ctx, res)
		// Stamped whatever the outcome so the next batch moves on to other rows.
		if markErr := j.reservations.MarkChecked(ctx, res.ID, now); markErr != nil {
			j.logg.Error(j.logg.WithReservation(ctx, res.ID), "mark reservation checked", markErr)
		}
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				skipped++
				continue
			}
			// One broken reservation must not starve the rest of the batch.
			j.logg.Error(j.logg.WithReservation(ctx, res.ID), "reconcile reservation", err)
			skipped++
			continue
		}
		switch result.Type {
		case enums.PaymentResultSuccessful:
			confirmed++
		case enums.PaymentResultFailed:
			failed++
		}
	}

	if len(rows) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"scanned":   len(rows),
			"confirmed": confirmed,
			"failed":    failed,
			"skipped":   skipped,
		}), "pending payment reconcile complete")
	}
	return nil
}
