package models

import "time"

// Subscription tiers and their monthly credit allotments.
const (
	TierFree            = "free"
	TierMonthlyBasic    = "monthly_basic"
	TierMonthlyStandard = "monthly_standard"
	TierMonthlyPro      = "monthly_pro"
	TierLifetime        = "lifetime"
)

// UserCredit is the single mutable credit counter per user. One live row
// per user_id; credits_remaining is reset to the tier allotment whenever
// the month rolls over or the tier changes.
type UserCredit struct {
	UserID           string    `json:"user_id" gorm:"primaryKey;size:128"`
	CurrentMonth     string    `json:"current_month" gorm:"size:7;not null"` // YYYY-MM
	CreditsRemaining int       `json:"credits_remaining" gorm:"not null"`
	Tier             string    `json:"tier" gorm:"size:32;not null"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (UserCredit) TableName() string { return "user_credits" }
