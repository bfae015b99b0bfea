package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// Reservation is a buyer's hold on a purchasable. It belongs to exactly one
// purchase context (PurchaseContextType + PurchaseContextID).
type Reservation struct {
	ID                  string                  `gorm:"column:id;type:varchar(64);primaryKey"`
	Status              enums.ReservationStatus `gorm:"column:status;type:varchar(64);not null"`
	Validated           *bool                   `gorm:"column:validated"`
	PurchaseContextType enums.PurchasableType   `gorm:"column:purchase_context_type;type:varchar(32);not null;index:ix_reservations_context"`
	PurchaseContextID   string                  `gorm:"column:purchase_context_id;type:varchar(64);not null;index:ix_reservations_context"`
	PaymentMethod       *enums.PaymentMethod    `gorm:"column:payment_method;type:varchar(32)"`
	FinalPrice          decimal.Decimal         `gorm:"column:final_price;type:numeric(14,2);not null;default:0"`
	Currency            string                  `gorm:"column:currency;type:varchar(3);not null"`
	Email               string                  `gorm:"column:email;type:varchar(255)"`
	ExpiresAt           *time.Time              `gorm:"column:expires_at"`
	LastCheckedAt       *time.Time              `gorm:"column:last_checked_at"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Reservation) TableName() string { return "reservations" }
