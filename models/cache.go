package models

import (
	"time"

	"gorm.io/datatypes"
)

// MemojiCache maps a normalized configuration hash to a previously
// generated artifact. At most one non-archived row may exist per hash
// (enforced by a partial unique index, see database/migrate.go).
type MemojiCache struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	PromptHash     string         `json:"prompt_hash" gorm:"size:64;index;not null"`
	ImageURL       string         `json:"image_url" gorm:"not null"`
	PromptConfig   datatypes.JSON `json:"prompt_config" gorm:"type:jsonb"`
	GenerationCost float64        `json:"generation_cost" gorm:"type:numeric(8,4)"`
	UsageCount     int            `json:"usage_count" gorm:"not null;default:1"`
	Archived       bool           `json:"archived" gorm:"not null;default:false;index"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUsedAt     time.Time      `json:"last_used_at"`
}

func (MemojiCache) TableName() string { return "memoji_cache" }
