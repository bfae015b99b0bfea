package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a ticketed event addressed publicly by its short name.
type Event struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShortName      string    `gorm:"column:short_name;type:varchar(128);not null;uniqueIndex:ux_events_short_name"`
	DisplayName    string    `gorm:"column:display_name;type:varchar(255);not null"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null"`
	Currency       string    `gorm:"column:currency;type:varchar(3);not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SubscriptionDescriptor describes a purchasable subscription, addressed by its UUID.
type SubscriptionDescriptor struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title          string    `gorm:"column:title;type:varchar(255);not null"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null"`
	Currency       string    `gorm:"column:currency;type:varchar(3);not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SubscriptionDescriptor) TableName() string { return "subscription_descriptors" }

func (s *SubscriptionDescriptor) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
