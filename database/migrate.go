package database

import (
	"fmt"

	"memoji-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - Partial unique index: one live cache entry per prompt hash
// - CHECK constraints backing the ledger and feedback invariants
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&models.MemojiCache{},
			&models.UserCredit{},
			&models.Entitlement{},
			&models.Order{},
			&models.Feedback{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		indexes := []string{
			// The non-archived pool may hold at most one row per hash;
			// archived history is exempt.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_memoji_cache_live_hash ON memoji_cache (prompt_hash) WHERE NOT archived`,
			`CREATE INDEX IF NOT EXISTS idx_memoji_cache_created_usage ON memoji_cache (created_at, usage_count)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		checks := []string{
			// Credits must never go negative; the conditional debit relies on it.
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'user_credits'::regclass
					  AND conname  = 'chk_user_credits_nonneg'
				) THEN
					ALTER TABLE user_credits
					ADD CONSTRAINT chk_user_credits_nonneg
					CHECK (credits_remaining >= 0);
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'feedback'::regclass
					  AND conname  = 'chk_feedback_rating_range'
				) THEN
					ALTER TABLE feedback
					ADD CONSTRAINT chk_feedback_rating_range
					CHECK (rating BETWEEN 1 AND 5);
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'orders'::regclass
					  AND conname  = 'chk_orders_amount_nonneg'
				) THEN
					ALTER TABLE orders
					ADD CONSTRAINT chk_orders_amount_nonneg
					CHECK (amount_minor >= 0);
				END IF;
			END $$;`,
		}
		for _, stmt := range checks {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed: %w", err)
			}
		}

		return nil
	})
}
