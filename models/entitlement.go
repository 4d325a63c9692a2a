package models

import "time"

// Entitlement records that a subject purchased a plan. Subjects arrive
// either as Figma user ids (plugin purchases) or web user ids (PhonePe
// web checkout); each is unique on its own column.
// plan == lifetime implies a nil expiry; any other plan without an
// expiry is treated as expired.
type Entitlement struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	FigmaUserID   *string    `json:"figma_user_id" gorm:"size:128;uniqueIndex"`
	WebUserID     *string    `json:"web_user_id" gorm:"size:128;uniqueIndex"`
	Plan          string     `json:"plan" gorm:"size:32;not null"`
	Expiry        *time.Time `json:"expiry"`
	Provider      string     `json:"provider" gorm:"size:32"`
	TransactionID string     `json:"transaction_id" gorm:"size:128"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Active reports whether the entitlement currently grants its plan.
func (e *Entitlement) Active(now time.Time) bool {
	if e.Plan == TierLifetime {
		return true
	}
	return e.Expiry != nil && e.Expiry.After(now)
}
