// Package cache maps normalized generation configs to previously
// produced artifacts. Personalized (reference-photo) requests must never
// touch it, in either direction; that exclusion lives in the caller.
package cache

import (
	"encoding/json"
	"errors"
	"time"

	"memoji-backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// Entries older than this and used fewer than MinKeepUsage times are
	// deleted by the cleanup sweep.
	cleanupAge   = 90 * 24 * time.Hour
	minKeepUsage = 2

	// Entries used more than this are archived out of the live pool.
	archiveUsage = 100

	// DefaultGenerationCost is the provider cost recorded per entry.
	DefaultGenerationCost = 0.02
)

type Cache struct {
	db *gorm.DB

	// Now is injectable for tests.
	Now func() time.Time
}

func New(db *gorm.DB) *Cache {
	return &Cache{db: db, Now: time.Now}
}

// Lookup returns the live (non-archived) entry for a hash, or nil on a
// miss. Store errors surface so the caller can fall through to
// generation instead of failing the request.
func (c *Cache) Lookup(hash string) (*models.MemojiCache, error) {
	var entry models.MemojiCache
	err := c.db.Where("prompt_hash = ? AND NOT archived", hash).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordHit bumps usage_count and last_used_at in one atomic statement.
// Best-effort: a failure is logged and never blocks the response.
func (c *Cache) RecordHit(hash string) {
	res := c.db.Exec(
		`UPDATE memoji_cache SET usage_count = usage_count + 1, last_used_at = ? WHERE prompt_hash = ? AND NOT archived`,
		c.Now().UTC(), hash,
	)
	if res.Error != nil {
		log.Warn().Err(res.Error).Str("hash", hash).Msg("cache hit accounting failed")
	}
}

// Store inserts a new entry with usage_count=1. A concurrent writer for
// the same hash wins last-writer-wins on the artifact URL; the live pool
// still holds at most one row per hash.
func (c *Cache) Store(hash, imageURL string, cfg Config, cost float64) error {
	raw, err := json.Marshal(Normalize(cfg))
	if err != nil {
		return err
	}
	now := c.Now().UTC()
	entry := models.MemojiCache{
		PromptHash:     hash,
		ImageURL:       imageURL,
		PromptConfig:   raw,
		GenerationCost: cost,
		UsageCount:     1,
		LastUsedAt:     now,
	}
	return c.db.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "prompt_hash"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{gorm.Expr("NOT archived")}},
		DoUpdates:   clause.AssignmentColumns([]string{"image_url", "prompt_config", "last_used_at"}),
	}).Create(&entry).Error
}

// CleanupReport summarizes one out-of-band sweep.
type CleanupReport struct {
	Deleted  int64 `json:"deletedEntries"`
	Archived int64 `json:"archivedEntries"`
}

// Cleanup deletes entries that are both old and rarely used, then
// archives entries popular enough to keep as history but remove from the
// live lookup pool.
func (c *Cache) Cleanup() (CleanupReport, error) {
	var report CleanupReport
	cutoff := c.Now().UTC().Add(-cleanupAge)

	res := c.db.Where("created_at < ? AND usage_count < ?", cutoff, minKeepUsage).
		Delete(&models.MemojiCache{})
	if res.Error != nil {
		return report, res.Error
	}
	report.Deleted = res.RowsAffected

	res = c.db.Model(&models.MemojiCache{}).
		Where("usage_count > ? AND NOT archived", archiveUsage).
		Update("archived", true)
	if res.Error != nil {
		return report, res.Error
	}
	report.Archived = res.RowsAffected

	return report, nil
}

// Stats aggregates the live pool for monitoring.
type Stats struct {
	TotalCached    int64   `json:"totalCached"`
	TotalUsage     int64   `json:"totalUsage"`
	TotalCostSaved float64 `json:"totalCostSaved"`
}

func (c *Cache) Stats() (Stats, error) {
	var s Stats
	row := c.db.Model(&models.MemojiCache{}).
		Where("NOT archived").
		Select("COUNT(*) AS total_cached, COALESCE(SUM(usage_count),0) AS total_usage, COALESCE(SUM(usage_count * generation_cost),0) AS total_cost_saved").
		Row()
	if err := row.Scan(&s.TotalCached, &s.TotalUsage, &s.TotalCostSaved); err != nil {
		return s, err
	}
	return s, nil
}
