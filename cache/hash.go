package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Config is the subset of a generation request that determines the
// cache identity. Field order is fixed by the struct, so the canonical
// JSON rendering is deterministic.
type Config struct {
	Model       string   `json:"model"`
	Size        string   `json:"size"`
	FamilyType  string   `json:"familyType"`
	Gesture     string   `json:"gesture"`
	Hair        string   `json:"hair"`
	SkinTone    string   `json:"skinTone"`
	Accessories []string `json:"accessories"`
	ColorTheme  string   `json:"colorTheme"`
	Background  string   `json:"background"`
}

// Normalize fills defaults, lower-cases the free-ish string fields, and
// sorts accessories so that field reordering or case variation never
// produces distinct cache entries.
func Normalize(cfg Config) Config {
	out := Config{
		Model:      defaultStr(cfg.Model, "gpt-image-1"),
		Size:       defaultStr(cfg.Size, "1024x1024"),
		FamilyType: defaultStr(cfg.FamilyType, "father"),
		Gesture:    defaultStr(cfg.Gesture, "wave"),
		Hair:       strings.ToLower(defaultStr(cfg.Hair, "short")),
		SkinTone:   strings.ToLower(defaultStr(cfg.SkinTone, "medium")),
		ColorTheme: defaultStr(cfg.ColorTheme, "pastel-blue"),
		Background: defaultStr(cfg.Background, "auto"),
	}
	out.Accessories = make([]string, len(cfg.Accessories))
	copy(out.Accessories, cfg.Accessories)
	sort.Strings(out.Accessories)
	return out
}

// Hash returns the sha256 hex key for a configuration. Semantically
// identical requests must collide here; that property carries the whole
// cache design.
func Hash(cfg Config) string {
	canonical, _ := json.Marshal(Normalize(cfg))
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func defaultStr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
