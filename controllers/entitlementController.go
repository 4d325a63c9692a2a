package controllers

import (
	"strings"
	"time"

	"memoji-backend/middlewares"

	"github.com/gofiber/fiber/v2"
)

type entitlementRequest struct {
	FigmaUserID string `json:"figmaUserId"`
	UserID      string `json:"userId"`
}

// CheckEntitlement reports whether a subject holds an active plan.
// A non-lifetime entitlement without an expiry is treated as expired.
func (h *Handler) CheckEntitlement(c *fiber.Ctx) error {
	var req entitlementRequest
	if err := c.BodyParser(&req); err != nil {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	subject := strings.TrimSpace(firstOf(req.FigmaUserID, req.UserID))
	if subject == "" {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "userId is required")
	}

	ent, err := h.findEntitlement(subject)
	if err != nil || !ent.Active(time.Now()) {
		return c.JSON(fiber.Map{"ok": false, "plan": "none"})
	}
	return c.JSON(fiber.Map{
		"ok":     true,
		"plan":   ent.Plan,
		"expiry": ent.Expiry,
	})
}
