package controllers

import (
	"fmt"
	"time"

	"memoji-backend/credits"
	"memoji-backend/metrics"
	"memoji-backend/middlewares"
	"memoji-backend/models"
	"memoji-backend/payments"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type razorpayCheckoutRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Plan   string `json:"plan" validate:"omitempty,oneof=monthly_basic monthly_standard monthly_pro"`
}

// RazorpayCheckout creates an auto-capture order carrying the user/plan
// in its notes so the webhook can grant the entitlement later.
func (h *Handler) RazorpayCheckout(c *fiber.Ctx) error {
	if h.Razorpay == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "Razorpay is not configured")
	}
	var req razorpayCheckoutRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}
	plan := firstOf(req.Plan, models.TierMonthlyBasic)
	amount := payments.RazorpayPlanPaise[plan]

	receipt := fmt.Sprintf("aim-%d", time.Now().UnixMilli())
	orderID, err := h.Razorpay.CreateOrder(c.UserContext(), amount, "INR", receipt,
		map[string]string{"userId": req.UserID, "plan": plan})
	if err != nil {
		if ve, ok := err.(*payments.VendorError); ok {
			return middlewares.Fail(c, fiber.StatusBadGateway, "razorpay_error", ve.Message)
		}
		return err
	}

	order := models.Order{
		OrderID:     orderID,
		UserID:      req.UserID,
		Plan:        plan,
		AmountMinor: amount,
		Currency:    "INR",
		Status:      models.OrderStatusCreated,
		Provider:    "razorpay",
	}
	if err := h.DB.Create(&order).Error; err != nil {
		log.Warn().Err(err).Str("order", orderID).Msg("pending order row write failed")
	}

	return c.JSON(fiber.Map{
		"ok":       true,
		"orderId":  orderID,
		"amount":   amount,
		"currency": "INR",
		"keyId":    h.Razorpay.KeyID,
	})
}

// RazorpayWebhook verifies the HMAC delivery and marks the order paid.
// Monthly plans get a 30-day expiry refreshed by each renewal capture.
func (h *Handler) RazorpayWebhook(c *fiber.Ctx) error {
	if h.RazorpayVerifier == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "Webhook verification is not configured")
	}

	event, err := h.RazorpayVerifier.Verify(c.UserContext(), headerGetter(c), c.Body())
	if err != nil || !event.Verified {
		metrics.WebhookEvents.WithLabelValues("razorpay", "rejected").Inc()
		return middlewares.Fail(c, fiber.StatusUnauthorized, "unauthorized", "Webhook verification failed")
	}
	if event.Kind != payments.EventPaymentCompleted {
		metrics.WebhookEvents.WithLabelValues("razorpay", "ignored").Inc()
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if event.OrderID == "" {
		metrics.WebhookEvents.WithLabelValues("razorpay", "ignored").Inc()
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Delivery carries no order id")
	}

	tier := credits.NormalizeTier(event.Plan)
	if err := h.markOrderPaid(event.OrderID, event.SubjectID, tier, "razorpay", c.Body()); err != nil {
		log.Warn().Err(err).Str("order", event.OrderID).Msg("order paid transition failed")
	}

	if event.SubjectID != "" {
		expiry := time.Now().AddDate(0, 0, 30)
		if err := h.upsertEntitlement(subjectFigma, event.SubjectID, tier, "razorpay", event.OrderID, &expiry); err != nil {
			return err
		}
		if err := h.Ledger.ResetForPeriod(event.SubjectID, tier); err != nil {
			log.Error().Err(err).Str("user", event.SubjectID).Msg("credit reset after payment failed")
		}
	}

	metrics.WebhookEvents.WithLabelValues("razorpay", "verified").Inc()
	return c.JSON(fiber.Map{"ok": true})
}
