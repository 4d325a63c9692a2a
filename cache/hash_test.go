package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAccessoryOrderInvariant(t *testing.T) {
	a := Config{Accessories: []string{"glasses", "hat", "earrings"}}
	b := Config{Accessories: []string{"hat", "earrings", "glasses"}}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashCaseInvariantFields(t *testing.T) {
	a := Config{Hair: "Short", SkinTone: "MEDIUM"}
	b := Config{Hair: "short", SkinTone: "medium"}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDefaultsCollapse(t *testing.T) {
	// An empty config and one spelling out every default are the same key.
	explicit := Config{
		Model:      "gpt-image-1",
		Size:       "1024x1024",
		FamilyType: "father",
		Gesture:    "wave",
		Hair:       "short",
		SkinTone:   "medium",
		ColorTheme: "pastel-blue",
		Background: "auto",
	}
	assert.Equal(t, Hash(Config{}), Hash(explicit))
}

func TestHashSensitiveToMeaningfulFields(t *testing.T) {
	base := Config{}
	assert.NotEqual(t, Hash(base), Hash(Config{Model: "dall-e-3"}))
	assert.NotEqual(t, Hash(base), Hash(Config{Size: "1536x1024"}))
	assert.NotEqual(t, Hash(base), Hash(Config{Gesture: "thumbs_up"}))
	assert.NotEqual(t, Hash(base), Hash(Config{Accessories: []string{"hat"}}))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := Config{Accessories: []string{"z", "a"}}
	_ = Normalize(in)
	assert.Equal(t, []string{"z", "a"}, in.Accessories)
}

func TestHashIsHexSHA256(t *testing.T) {
	h := Hash(Config{})
	assert.Len(t, h, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", h)
}
