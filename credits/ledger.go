// Package credits implements the per-user monthly credit ledger.
//
// The ledger is the one place where persistence failures are handled
// asymmetrically: reads fail open (an outage must not lock out paying
// users) while debits fail closed (the system must never under-charge
// silently). Both fallbacks are named code paths, not scattered recovers.
package credits

import (
	"errors"
	"time"

	"memoji-backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Unlimited is the remaining-credits sentinel for lifetime accounts.
const Unlimited = -1

var allotments = map[string]int{
	models.TierFree:            2,
	models.TierMonthlyBasic:    100,
	models.TierMonthlyStandard: 300,
	models.TierMonthlyPro:      1000,
	"monthly":                  100, // legacy alias for monthly_basic
}

// Allotment returns the monthly credit total for a tier. Lifetime is
// Unlimited; unknown tiers fall back to monthly_basic.
func Allotment(tier string) int {
	if tier == models.TierLifetime {
		return Unlimited
	}
	if n, ok := allotments[tier]; ok {
		return n
	}
	return allotments[models.TierMonthlyBasic]
}

// NormalizeTier maps payment-provider plan labels onto ledger tiers.
// "monthly" and "subscription" are provider-side aliases for the basic
// monthly plan.
func NormalizeTier(plan string) string {
	switch plan {
	case models.TierFree, models.TierMonthlyBasic, models.TierMonthlyStandard, models.TierMonthlyPro, models.TierLifetime:
		return plan
	case "monthly", "subscription":
		return models.TierMonthlyBasic
	default:
		return models.TierMonthlyBasic
	}
}

type Ledger struct {
	db *gorm.DB

	// Now is injectable for tests.
	Now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, Now: time.Now}
}

// CurrentPeriod is the ledger's month key (YYYY-MM, UTC).
func (l *Ledger) CurrentPeriod() string {
	return l.Now().UTC().Format("2006-01")
}

// GetAccount returns the user's credit account, lazily creating or
// resetting it when the stored month or tier differs from the current
// ones. Lifetime accounts are synthetic and never persisted: their
// balance is unbounded.
func (l *Ledger) GetAccount(userID, tier string) models.UserCredit {
	month := l.CurrentPeriod()
	if tier == models.TierLifetime {
		return models.UserCredit{
			UserID:           userID,
			CurrentMonth:     month,
			CreditsRemaining: Unlimited,
			Tier:             tier,
			UpdatedAt:        l.Now().UTC(),
		}
	}

	var acct models.UserCredit
	err := l.db.Where("user_id = ?", userID).First(&acct).Error
	switch {
	case err == nil && acct.CurrentMonth == month && acct.Tier == tier:
		return acct
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return l.readFallback(userID, tier, err)
	}

	// Missing, stale month, or tier change: reset to the full allotment.
	fresh := models.UserCredit{
		UserID:           userID,
		CurrentMonth:     month,
		CreditsRemaining: Allotment(tier),
		Tier:             tier,
		UpdatedAt:        l.Now().UTC(),
	}
	if err := l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_month", "credits_remaining", "tier", "updated_at"}),
	}).Create(&fresh).Error; err != nil {
		return l.readFallback(userID, tier, err)
	}
	return fresh
}

// Debit consumes exactly one credit. The decrement is a single atomic
// conditional update; RowsAffected is the success signal, which closes
// the race where two concurrent requests both observe a balance of 1.
func (l *Ledger) Debit(userID, tier string) bool {
	if tier == models.TierLifetime {
		return true
	}

	// Ensure the row exists and is current before the conditional update.
	acct := l.GetAccount(userID, tier)
	if acct.CreditsRemaining <= 0 {
		return false
	}

	res := l.db.Exec(
		`UPDATE user_credits SET credits_remaining = credits_remaining - 1, updated_at = ? WHERE user_id = ? AND credits_remaining > 0`,
		l.Now().UTC(), userID,
	)
	if res.Error != nil {
		return l.writeFallback(userID, res.Error)
	}
	return res.RowsAffected == 1
}

// ResetForPeriod force-sets the account to the tier's full allotment for
// the current period. Invoked by payment webhooks and order sync, not by
// the generation path.
func (l *Ledger) ResetForPeriod(userID, tier string) error {
	remaining := Allotment(tier)
	if tier == models.TierLifetime {
		// Keep a row for status reporting; the balance is never consulted.
		remaining = 0
	}
	acct := models.UserCredit{
		UserID:           userID,
		CurrentMonth:     l.CurrentPeriod(),
		CreditsRemaining: remaining,
		Tier:             tier,
		UpdatedAt:        l.Now().UTC(),
	}
	return l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_month", "credits_remaining", "tier", "updated_at"}),
	}).Create(&acct).Error
}

// readFallback is the fail-open path: when the store cannot be read the
// caller sees a full allotment so an outage never locks out paying users.
func (l *Ledger) readFallback(userID, tier string, cause error) models.UserCredit {
	log.Error().Err(cause).Str("user", userID).Msg("credit read failed, assuming full allotment")
	return models.UserCredit{
		UserID:           userID,
		CurrentMonth:     l.CurrentPeriod(),
		CreditsRemaining: Allotment(tier),
		Tier:             tier,
		UpdatedAt:        l.Now().UTC(),
	}
}

// writeFallback is the fail-closed path: a debit that cannot be
// persisted is a failed debit.
func (l *Ledger) writeFallback(userID string, cause error) bool {
	log.Error().Err(cause).Str("user", userID).Msg("credit debit failed")
	return false
}
