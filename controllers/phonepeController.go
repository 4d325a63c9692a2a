package controllers

import (
	"time"

	"memoji-backend/credits"
	"memoji-backend/metrics"
	"memoji-backend/middlewares"
	"memoji-backend/models"
	"memoji-backend/payments"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type phonePeCheckoutRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Plan   string `json:"plan" validate:"omitempty,oneof=monthly lifetime"`
}

// PhonePeCheckout opens a hosted pay-page session and records the
// pending order keyed to the web user id.
func (h *Handler) PhonePeCheckout(c *fiber.Ctx) error {
	if h.PhonePe == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "PhonePe is not configured")
	}
	var req phonePeCheckoutRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}
	plan := firstOf(req.Plan, "lifetime")

	session, err := h.PhonePe.CreateSession(c.UserContext(), req.UserID, plan)
	if err != nil {
		if ve, ok := err.(*payments.VendorError); ok {
			return middlewares.Fail(c, fiber.StatusBadGateway, "phonepe_error", ve.Message)
		}
		return err
	}

	order := models.Order{
		OrderID:     session.OrderID,
		UserID:      req.UserID,
		Plan:        plan,
		AmountMinor: session.AmountPaise,
		Currency:    "INR",
		Status:      models.OrderStatusCreated,
		Provider:    "phonepe",
	}
	if err := h.DB.Create(&order).Error; err != nil {
		log.Warn().Err(err).Str("order", session.OrderID).Msg("pending order row write failed")
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"orderId":     session.OrderID,
		"redirectUrl": session.RedirectURL,
		"amount":      session.AmountPaise,
	})
}

// PhonePeWebhook handles the Basic-auth callback. Verification here is
// purely local, so any rejection is a hard 401.
func (h *Handler) PhonePeWebhook(c *fiber.Ctx) error {
	if h.PhonePeVerifier == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "Webhook verification is not configured")
	}

	event, err := h.PhonePeVerifier.Verify(c.UserContext(), headerGetter(c), c.Body())
	if err != nil || !event.Verified {
		metrics.WebhookEvents.WithLabelValues("phonepe", "rejected").Inc()
		return middlewares.Fail(c, fiber.StatusUnauthorized, "unauthorized", "Webhook verification failed")
	}

	if event.Kind != payments.EventPaymentCompleted {
		metrics.WebhookEvents.WithLabelValues("phonepe", "ignored").Inc()
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if event.SubjectID == "" {
		metrics.WebhookEvents.WithLabelValues("phonepe", "ignored").Inc()
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Callback carries no user id")
	}

	tier := credits.NormalizeTier(event.Plan)
	var expiry *time.Time
	if event.Plan != "lifetime" {
		t := time.Now().AddDate(0, 0, 30)
		expiry = &t
	}
	if err := h.upsertEntitlement(subjectWeb, event.SubjectID, event.Plan, "phonepe", event.OrderID, expiry); err != nil {
		return err
	}
	if err := h.Ledger.ResetForPeriod(event.SubjectID, tier); err != nil {
		log.Error().Err(err).Str("user", event.SubjectID).Msg("credit reset after payment failed")
	}
	if err := h.markOrderPaid(event.OrderID, event.SubjectID, event.Plan, "phonepe", c.Body()); err != nil {
		log.Warn().Err(err).Str("order", event.OrderID).Msg("order paid transition failed")
	}

	metrics.WebhookEvents.WithLabelValues("phonepe", "verified").Inc()
	return c.JSON(fiber.Map{"ok": true})
}

// PhonePeStatus lets the return page poll whether the webhook landed.
func (h *Handler) PhonePeStatus(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "userId is required")
	}
	ent, err := h.findEntitlement(userID)
	if err != nil {
		return c.JSON(fiber.Map{"ok": false, "plan": "none"})
	}
	return c.JSON(fiber.Map{"ok": true, "plan": ent.Plan})
}
