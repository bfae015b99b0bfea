package purchasables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// Repository looks purchasables up by their public identifier.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByTypeAndIdentifier returns nil, nil when nothing matches.
	FindByTypeAndIdentifier(ctx context.Context, kind enums.PurchasableType, identifier string) (*Context, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchasables repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByTypeAndIdentifier(ctx context.Context, kind enums.PurchasableType, identifier string) (*Context, error) {
	switch kind {
	case enums.PurchasableEvent:
		return r.findEvent(ctx, identifier)
	case enums.PurchasableSubscription:
		id, err := uuid.Parse(identifier)
		if err != nil {
			return nil, nil
		}
		return r.findSubscription(ctx, id)
	}
	return nil, nil
}

func (r *repository) findEvent(ctx context.Context, shortName string) (*Context, error) {
	var event models.Event
	err := r.db.WithContext(ctx).Where("short_name = ?", shortName).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Context{
		Type:           enums.PurchasableEvent,
		ID:             event.ID.String(),
		Identifier:     event.ShortName,
		OrganizationID: event.OrganizationID,
		Currency:       event.Currency,
		DisplayName:    event.DisplayName,
	}, nil
}

func (r *repository) findSubscription(ctx context.Context, id uuid.UUID) (*Context, error) {
	var descriptor models.SubscriptionDescriptor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&descriptor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Context{
		Type:           enums.PurchasableSubscription,
		ID:             descriptor.ID.String(),
		Identifier:     descriptor.ID.String(),
		OrganizationID: descriptor.OrganizationID,
		Currency:       descriptor.Currency,
		DisplayName:    descriptor.Title,
	}, nil
}
