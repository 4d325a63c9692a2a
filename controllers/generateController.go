package controllers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"memoji-backend/cache"
	"memoji-backend/credits"
	"memoji-backend/generator"
	"memoji-backend/metrics"
	"memoji-backend/middlewares"
	"memoji-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	maxPromptLen = 1000

	// Decoded reference photos above this are rejected before any credit
	// is spent.
	maxReferenceBytes = 4 << 20

	generateDeadline = 90 * time.Second
)

var (
	validSizes = map[string]bool{
		"1024x1024": true,
		"1024x1536": true,
		"1536x1024": true,
	}
	validModels = map[string]bool{
		"gpt-image-1": true,
		"dall-e-3":    true,
		"dall-e-2":    true,
	}
	validBackgrounds = map[string]bool{
		"":            true,
		"auto":        true,
		"transparent": true,
	}
)

type generateRequest struct {
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	Size       string `json:"size"`
	Background string `json:"background"`

	// Compact avatar configuration; used to assemble the prompt when one
	// is not supplied, and as the cache identity.
	FamilyType  string   `json:"familyType"`
	Gesture     string   `json:"gesture"`
	Hair        string   `json:"hair"`
	SkinTone    string   `json:"skinTone"`
	Accessories []string `json:"accessories"`
	ColorTheme  string   `json:"colorTheme"`

	// ReferenceImage (base64 PNG/JPEG) switches the request into
	// personalized mode, which bypasses the cache entirely.
	ReferenceImage string `json:"referenceImage"`

	UserID           string `json:"userId"`
	SubscriptionTier string `json:"subscriptionTier"`
}

// GenerateMemoji is the main product endpoint. Order of operations is
// deliberate: identity, validation, debit, cache, provider. The debit
// happens before the cache lookup, so cached responses consume a credit
// like any other generation.
func (h *Handler) GenerateMemoji(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		// Distinct from the signature 401: the request is authentic but
		// carries no identity to meter against.
		return middlewares.Fail(c, fiber.StatusUnauthorized, "auth_required", "User identification required")
	}
	tier := credits.NormalizeTier(defaultTier(req.SubscriptionTier))

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = buildPrompt(req)
	}
	if len(prompt) > maxPromptLen {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Prompt too long")
	}
	if req.Model != "" && !validModels[req.Model] {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Unsupported model")
	}
	if req.Size != "" && !validSizes[req.Size] {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Unsupported size")
	}
	if !validBackgrounds[req.Background] {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Unsupported background")
	}

	personalized := req.ReferenceImage != ""
	if personalized {
		decoded, err := base64.StdEncoding.DecodeString(trimDataURL(req.ReferenceImage))
		if err != nil {
			return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Reference image is not valid base64")
		}
		if len(decoded) > maxReferenceBytes {
			return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Reference image too large")
		}
		prompt = personalizePrompt(prompt)
	}

	if !h.Ledger.Debit(userID, tier) {
		metrics.CreditDebits.WithLabelValues("exhausted").Inc()
		return middlewares.Fail(c, fiber.StatusPaymentRequired, "out_of_credits", "Monthly generation limit reached")
	}
	metrics.CreditDebits.WithLabelValues("ok").Inc()
	remaining := h.Ledger.GetAccount(userID, tier).CreditsRemaining

	cfg := cache.Config{
		Model:       req.Model,
		Size:        req.Size,
		FamilyType:  req.FamilyType,
		Gesture:     req.Gesture,
		Hair:        req.Hair,
		SkinTone:    req.SkinTone,
		Accessories: req.Accessories,
		ColorTheme:  req.ColorTheme,
		Background:  req.Background,
	}
	hash := cache.Hash(cfg)

	if !personalized {
		entry, err := h.Cache.Lookup(hash)
		if err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("cache lookup failed, generating")
		}
		if entry != nil {
			h.Cache.RecordHit(hash)
			metrics.CacheHits.Inc()
			metrics.Generations.WithLabelValues("cached").Inc()
			return c.JSON(fiber.Map{
				"success":   true,
				"cached":    true,
				"imageUrl":  entry.ImageURL,
				"cacheId":   entry.ID,
				"costSaved": entry.GenerationCost,
				"usage":     usagePayload(tier, remaining),
			})
		}
		metrics.CacheMisses.Inc()
	}

	normalized := cache.Normalize(cfg)
	ctx, cancel := context.WithTimeout(c.UserContext(), generateDeadline)
	defer cancel()
	result, err := h.Generator.Generate(ctx, generator.Params{
		Model:      normalized.Model,
		Prompt:     prompt,
		Size:       normalized.Size,
		Background: normalized.Background,
	})
	if err != nil {
		// The debit stands: the provider was engaged on the user's behalf.
		metrics.Generations.WithLabelValues("failed").Inc()
		var upstream *generator.UpstreamError
		if errors.As(err, &upstream) {
			log.Error().Int("status", upstream.Status).Str("user", userID).Msg("provider rejected generation")
			return middlewares.Fail(c, fiber.StatusBadGateway, "generation_failed", upstream.Message)
		}
		log.Error().Err(err).Str("user", userID).Msg("generation failed")
		return middlewares.Fail(c, fiber.StatusBadGateway, "generation_failed", "Image generation failed")
	}

	imageURL := h.persistArtifact(ctx, result.Data[0], hash)
	if !personalized && imageURL != "" {
		if err := h.Cache.Store(hash, imageURL, cfg, cache.DefaultGenerationCost); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("cache store failed")
		}
	}

	metrics.Generations.WithLabelValues("generated").Inc()

	// Artifact refs go out as the provider returned them, except that a
	// persisted copy replaces the inline payload.
	artifacts := make([]generator.Artifact, len(result.Data))
	copy(artifacts, result.Data)
	if imageURL != "" {
		artifacts[0] = generator.Artifact{URL: imageURL}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"cached":  false,
		"data":    artifacts,
		"usage":   usagePayload(tier, remaining),
	})
}

// persistArtifact uploads inline artifact bytes to blob storage.
// Best-effort: the response can fall back to the provider URL or inline
// base64 when storage is unavailable.
func (h *Handler) persistArtifact(ctx context.Context, art generator.Artifact, hash string) string {
	if h.Blobs == nil || art.B64JSON == "" {
		return art.URL
	}
	data, err := base64.StdEncoding.DecodeString(art.B64JSON)
	if err != nil {
		log.Warn().Err(err).Msg("artifact decode failed")
		return art.URL
	}
	url, err := h.Blobs.Upload(ctx, data, hash)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("artifact upload failed")
		return art.URL
	}
	return url
}

func usagePayload(tier string, remaining int) fiber.Map {
	if tier == models.TierLifetime {
		remaining = credits.Unlimited
	}
	return fiber.Map{"tier": tier, "freeGenerationsRemaining": remaining}
}

func defaultTier(tier string) string {
	if strings.TrimSpace(tier) == "" {
		return models.TierFree
	}
	return tier
}

// buildPrompt assembles the full generation prompt from the compact
// avatar configuration.
func buildPrompt(req generateRequest) string {
	family := defaultStr(req.FamilyType, "father")
	gesture := strings.ReplaceAll(defaultStr(req.Gesture, "wave"), "_", "-")
	hair := defaultStr(req.Hair, "short")
	skin := defaultStr(req.SkinTone, "light")

	accessory := ""
	if len(req.Accessories) > 0 && req.Accessories[0] != "" {
		accessory = fmt.Sprintf(" Wearing %s.", req.Accessories[0])
	}
	clothing := "casual pastel shirt"
	if req.ColorTheme == "warm-pink" {
		clothing = "soft pastel sweater"
	}
	background := " Pastel circular background."
	if req.Background == "transparent" || req.ColorTheme == "transparent" {
		background = ""
	}

	return fmt.Sprintf(
		"A premium 3D Memoji-style avatar of a %s with %s hair and %s skin tone. "+
			"Include head, shoulders, and hands with a %s gesture. Dressed in a %s.%s%s "+
			"Soft rounded shapes, glossy textures, minimal modern style. Cheerful happy face with warm eyes.",
		family, hair, skin, gesture, clothing, accessory, background,
	)
}

func personalizePrompt(prompt string) string {
	return prompt + " Match the facial features, hair style and skin tone of the person in the provided reference photo."
}

// trimDataURL strips an optional data:image/...;base64, prefix.
func trimDataURL(s string) string {
	if idx := strings.Index(s, ","); idx != -1 && strings.HasPrefix(s, "data:") {
		return s[idx+1:]
	}
	return s
}

func defaultStr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
