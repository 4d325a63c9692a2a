package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// Order is created at checkout initiation and transitions to paid only
// on a verified webhook callback. Amounts are stored in minor units
// (paise/cents) to avoid float money math.
type Order struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	OrderID     string         `json:"order_id" gorm:"size:128;uniqueIndex;not null"`
	UserID      string         `json:"user_id" gorm:"size:128;index"`
	Plan        string         `json:"plan" gorm:"size:32"`
	AmountMinor int64          `json:"amount_minor" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"size:8"`
	Status      string         `json:"status" gorm:"size:16;not null;default:created"`
	Provider    string         `json:"provider" gorm:"size:32"`
	RawResponse datatypes.JSON `json:"-" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
