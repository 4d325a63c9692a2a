package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// CleanupCache runs the retention sweep. Admin-only; intended to be
// invoked by a scheduler, not by clients.
func (h *Handler) CleanupCache(c *fiber.Ctx) error {
	report, err := h.Cache.Cleanup()
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", report.Deleted).Int64("archived", report.Archived).Msg("cache cleanup completed")
	return c.JSON(fiber.Map{"ok": true, "report": report})
}

// CacheStats reports the live pool aggregates plus derived efficiency
// numbers.
func (h *Handler) CacheStats(c *fiber.Ctx) error {
	stats, err := h.Cache.Stats()
	if err != nil {
		return err
	}

	avgUsage := 0.0
	if stats.TotalCached > 0 {
		avgUsage = float64(stats.TotalUsage) / float64(stats.TotalCached)
	}
	// Every use beyond the first would otherwise have been a provider call.
	savedCalls := stats.TotalUsage - stats.TotalCached
	if savedCalls < 0 {
		savedCalls = 0
	}
	efficiency := "0%"
	if stats.TotalUsage > 0 {
		efficiency = fmt.Sprintf("%.1f%%", float64(savedCalls)/float64(stats.TotalUsage)*100)
	}

	return c.JSON(fiber.Map{
		"ok":                   true,
		"stats":                stats,
		"avgUsagePerCached":    avgUsage,
		"estimatedCostSavings": stats.TotalCostSaved,
		"cacheEfficiency":      efficiency,
	})
}
