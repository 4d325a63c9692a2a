package cache

import (
	"testing"
	"time"

	"memoji-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.MemojiCache{}))
	// Same partial unique index production runs with.
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memoji_cache_live_hash ON memoji_cache (prompt_hash) WHERE NOT archived`,
	).Error)
	return db
}

func testCache(t *testing.T) (*Cache, *time.Time) {
	c := New(testDB(t))
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }
	return c, &now
}

func TestStoreAndLookup(t *testing.T) {
	c, _ := testCache(t)
	cfg := Config{Hair: "curly"}
	hash := Hash(cfg)

	require.NoError(t, c.Store(hash, "https://cdn.example/img.png", cfg, DefaultGenerationCost))

	entry, err := c.Lookup(hash)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "https://cdn.example/img.png", entry.ImageURL)
	assert.Equal(t, 1, entry.UsageCount)
}

func TestLookupMissIsNilNil(t *testing.T) {
	c, _ := testCache(t)
	entry, err := c.Lookup(Hash(Config{Hair: "never-stored"}))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreSameHashKeepsOneLiveRow(t *testing.T) {
	c, _ := testCache(t)
	cfg := Config{Gesture: "thumbs_up"}
	hash := Hash(cfg)

	require.NoError(t, c.Store(hash, "https://cdn.example/first.png", cfg, DefaultGenerationCost))
	require.NoError(t, c.Store(hash, "https://cdn.example/second.png", cfg, DefaultGenerationCost))

	var count int64
	require.NoError(t, c.db.Model(&models.MemojiCache{}).Where("prompt_hash = ? AND NOT archived", hash).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	entry, err := c.Lookup(hash)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/second.png", entry.ImageURL)
}

func TestRecordHitIncrements(t *testing.T) {
	c, now := testCache(t)
	cfg := Config{ColorTheme: "warm-pink"}
	hash := Hash(cfg)
	require.NoError(t, c.Store(hash, "https://cdn.example/img.png", cfg, DefaultGenerationCost))

	*now = now.Add(time.Hour)
	c.RecordHit(hash)
	c.RecordHit(hash)

	entry, err := c.Lookup(hash)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.UsageCount)
	assert.Equal(t, now.UTC(), entry.LastUsedAt.UTC())
}

func TestCleanupDeletesOldRarelyUsed(t *testing.T) {
	c, now := testCache(t)
	old := now.Add(-100 * 24 * time.Hour)

	rows := []models.MemojiCache{
		{PromptHash: "old-unused", ImageURL: "u1", UsageCount: 1, CreatedAt: old, LastUsedAt: old},
		{PromptHash: "old-popular", ImageURL: "u2", UsageCount: 50, CreatedAt: old, LastUsedAt: old},
		{PromptHash: "fresh-unused", ImageURL: "u3", UsageCount: 1, CreatedAt: now.Add(-time.Hour), LastUsedAt: *now},
	}
	require.NoError(t, c.db.Create(&rows).Error)

	report, err := c.Cleanup()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Deleted)
	assert.EqualValues(t, 0, report.Archived)

	var remaining int64
	require.NoError(t, c.db.Model(&models.MemojiCache{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)
}

func TestCleanupArchivesHeavyHitters(t *testing.T) {
	c, now := testCache(t)
	rows := []models.MemojiCache{
		{PromptHash: "viral", ImageURL: "u1", UsageCount: 250, CreatedAt: *now, LastUsedAt: *now},
		{PromptHash: "normal", ImageURL: "u2", UsageCount: 10, CreatedAt: *now, LastUsedAt: *now},
	}
	require.NoError(t, c.db.Create(&rows).Error)

	report, err := c.Cleanup()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Archived)

	// Archived entries leave the live pool.
	entry, err := c.Lookup("viral")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStats(t *testing.T) {
	c, now := testCache(t)
	rows := []models.MemojiCache{
		{PromptHash: "a", ImageURL: "u", UsageCount: 5, GenerationCost: 0.02, CreatedAt: *now, LastUsedAt: *now},
		{PromptHash: "b", ImageURL: "u", UsageCount: 3, GenerationCost: 0.02, CreatedAt: *now, LastUsedAt: *now},
		{PromptHash: "c", ImageURL: "u", UsageCount: 99, GenerationCost: 0.02, Archived: true, CreatedAt: *now, LastUsedAt: *now},
	}
	require.NoError(t, c.db.Create(&rows).Error)

	s, err := c.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.TotalCached)
	assert.EqualValues(t, 8, s.TotalUsage)
	assert.InDelta(t, 0.16, s.TotalCostSaved, 1e-9)
}
