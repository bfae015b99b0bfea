package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// TransactionRepository persists the provider transaction attached to a reservation.
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	FindByReservation(ctx context.Context, reservationID string) (*models.PaymentTransaction, error)
	FindByProviderReference(ctx context.Context, provider, reference string) (*models.PaymentTransaction, error)
	// Save creates the reservation's row or replaces it in place, keeping its id.
	Save(ctx context.Context, row *models.PaymentTransaction) error
	UpdateStatus(ctx context.Context, reservationID string, status enums.TransactionStatus, failureReason *string) (bool, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	if tx == nil {
		return r
	}
	return &transactionRepository{db: tx}
}

func (r *transactionRepository) FindByReservation(ctx context.Context, reservationID string) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *transactionRepository) FindByProviderReference(ctx context.Context, provider, reference string) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_reference = ?", provider, reference).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *transactionRepository) Save(ctx context.Context, row *models.PaymentTransaction) error {
	existing, err := r.FindByReservation(ctx, row.ReservationID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(row).Error
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"method":             row.Method,
			"provider":           row.Provider,
			"provider_reference": row.ProviderReference,
			"idempotency_key":    row.IdempotencyKey,
			"status":             row.Status,
			"token":              row.Token,
			"failure_reason":     row.FailureReason,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// UpdateStatus moves a pending row to status. A provider may still settle a
// payment it earlier reported as failed, so succeeded also overrides failed.
// Nothing leaves succeeded.
func (r *transactionRepository) UpdateStatus(ctx context.Context, reservationID string, status enums.TransactionStatus, failureReason *string) (bool, error) {
	from := []enums.TransactionStatus{enums.TransactionPending}
	if status == enums.TransactionSucceeded {
		from = append(from, enums.TransactionFailed)
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("reservation_id = ? AND status IN ?", reservationID, from).
		Updates(map[string]any{
			"status":         status,
			"failure_reason": failureReason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
