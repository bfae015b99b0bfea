package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// PaymentTransaction records the provider-side transaction opened for a
// reservation. There is at most one row per reservation.
type PaymentTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID     string                  `gorm:"column:reservation_id;type:varchar(64);not null;uniqueIndex:ux_payment_transactions_reservation"`
	Method            enums.PaymentMethod     `gorm:"column:method;type:varchar(32);not null"`
	Provider          string                  `gorm:"column:provider;type:varchar(32);not null"`
	ProviderReference *string                 `gorm:"column:provider_reference;type:varchar(255);index:ix_payment_transactions_provider_ref"`
	IdempotencyKey    string                  `gorm:"column:idempotency_key;type:varchar(255);not null"`
	Status            enums.TransactionStatus `gorm:"column:status;type:varchar(16);not null"`
	Token             json.RawMessage         `gorm:"column:token;type:jsonb"`
	FailureReason     *string                 `gorm:"column:failure_reason"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
