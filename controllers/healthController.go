package controllers

import (
	"os"

	"github.com/gofiber/fiber/v2"
)

// Health reports which external integrations are configured. The
// response is 503 when a dependency the core flow cannot run without is
// missing, so platform health checks keep bad deploys out of rotation.
func (h *Handler) Health(c *fiber.Ctx) error {
	checks := fiber.Map{
		"openai":         h.Generator != nil,
		"backend_secret": os.Getenv("BACKEND_SECRET") != "",
		"storage":        h.Blobs != nil,
		"paypal":         h.PayPal != nil,
		"phonepe":        h.PhonePe != nil,
		"razorpay":       h.Razorpay != nil,
	}

	dbOK := false
	if h.DB != nil {
		if sqlDB, err := h.DB.DB(); err == nil && sqlDB.Ping() == nil {
			dbOK = true
		}
	}
	checks["database"] = dbOK

	healthy := checks["openai"].(bool) && checks["backend_secret"].(bool) && dbOK
	status := fiber.StatusOK
	state := "healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		state = "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": checks})
}
