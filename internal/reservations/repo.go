package reservations

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// StatusProjection is the slice of a reservation the redirect routes need.
// It carries the owning context so callers can check ownership.
type StatusProjection struct {
	ID                  string
	Status              enums.ReservationStatus
	Validated           *bool
	PurchaseContextType enums.PurchasableType
	PurchaseContextID   string
}

// Repository defines persistence operations for reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByID returns nil, nil when the reservation does not exist in the given context.
	FindByID(ctx context.Context, contextType enums.PurchasableType, contextID, reservationID string) (*models.Reservation, error)
	FindStatusAndValidation(ctx context.Context, reservationID string) (*StatusProjection, error)
	UpdateStatusIf(ctx context.Context, reservationID string, from []enums.ReservationStatus, to enums.ReservationStatus) (bool, error)
	SetPaymentMethod(ctx context.Context, reservationID string, method enums.PaymentMethod) error
	ListAwaitingConfirmation(ctx context.Context, staleBefore time.Time, limit int) ([]models.Reservation, error)
	MarkChecked(ctx context.Context, reservationID string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reservations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, contextType enums.PurchasableType, contextID, reservationID string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("id = ? AND purchase_context_type = ? AND purchase_context_id = ?", reservationID, contextType, contextID).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindStatusAndValidation(ctx context.Context, reservationID string) (*StatusProjection, error) {
	var row StatusProjection
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("id, status, validated, purchase_context_type, purchase_context_id").
		Where("id = ?", reservationID).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// UpdateStatusIf moves the reservation to `to` only while it is in one of `from`.
// It reports whether a row changed.
func (r *repository) UpdateStatusIf(ctx context.Context, reservationID string, from []enums.ReservationStatus, to enums.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status IN ?", reservationID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetPaymentMethod(ctx context.Context, reservationID string, method enums.PaymentMethod) error {
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", reservationID).
		Updates(map[string]any{
			"payment_method": method,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// offlineMethods settle outside any provider, so there is nothing to re-check.
var offlineMethods = []enums.PaymentMethod{
	enums.PaymentMethodBankTransfer,
	enums.PaymentMethodOnSite,
}

// ListAwaitingConfirmation returns reservations paid through a remote provider
// that may still be confirmed. A row qualifies once both its last change and
// its last check are older than staleBefore; least recently checked come first.
func (r *repository) ListAwaitingConfirmation(ctx context.Context, staleBefore time.Time, limit int) ([]models.Reservation, error) {
	statuses := []enums.ReservationStatus{
		enums.ReservationPending,
		enums.ReservationExternalProcessingPayment,
		enums.ReservationWaitingExternalConfirmation,
	}
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status IN ? AND payment_method IS NOT NULL AND payment_method NOT IN ?", statuses, offlineMethods).
		Where("updated_at < ? AND (last_checked_at IS NULL OR last_checked_at < ?)", staleBefore.UTC(), staleBefore.UTC()).
		Order("COALESCE(last_checked_at, updated_at) ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkChecked stamps a provider re-check without touching updated_at.
func (r *repository) MarkChecked(ctx context.Context, reservationID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", reservationID).
		UpdateColumn("last_checked_at", at.UTC()).Error
}
