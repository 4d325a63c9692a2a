package controllers

import (
	"math"
	"strconv"
	"time"

	"memoji-backend/credits"
	"memoji-backend/metrics"
	"memoji-backend/middlewares"
	"memoji-backend/models"
	"memoji-backend/payments"
	"memoji-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type paypalOrderRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency"`
	Title       string `json:"title"`
	FigmaUserID string `json:"figmaUserId" validate:"required"`
}

// CreatePayPalOrder opens a capture-intent order and records a pending
// order row for later reconciliation.
func (h *Handler) CreatePayPalOrder(c *fiber.Ctx) error {
	if h.PayPal == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "PayPal is not configured")
	}
	var req paypalOrderRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}
	amount, err := strconv.ParseFloat(req.Amount, 64)
	if err != nil || amount <= 0 {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid amount")
	}
	currency := firstOf(req.Currency, "USD")
	title := firstOf(req.Title, "AI Memojis Pro Lifetime")

	orderID, err := h.PayPal.CreateOrder(c.UserContext(), req.Amount, currency, title, req.FigmaUserID)
	if err != nil {
		return paypalError(c, err)
	}

	order := models.Order{
		OrderID:     orderID,
		UserID:      req.FigmaUserID,
		Plan:        models.TierLifetime,
		AmountMinor: int64(math.Round(amount * 100)),
		Currency:    currency,
		Status:      models.OrderStatusCreated,
		Provider:    "paypal",
	}
	if err := h.DB.Create(&order).Error; err != nil {
		log.Warn().Err(err).Str("order", orderID).Msg("pending order row write failed")
	}

	return c.JSON(fiber.Map{"ok": true, "orderId": orderID})
}

type paypalCaptureRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// CapturePayPalOrder settles the order and grants the lifetime plan to
// the user carried in custom_id.
func (h *Handler) CapturePayPalOrder(c *fiber.Ctx) error {
	if h.PayPal == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "PayPal is not configured")
	}
	var req paypalCaptureRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	outcome, err := h.PayPal.CaptureOrder(c.UserContext(), req.OrderID)
	if err != nil {
		return paypalError(c, err)
	}
	if outcome.Status != "COMPLETED" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fiber.Map{"code": "capture_incomplete", "message": "Capture did not complete"},
			"order": fiber.Map{"orderId": outcome.OrderID, "status": outcome.Status},
		})
	}

	if outcome.CustomID != "" {
		if err := h.upsertEntitlement(subjectFigma, outcome.CustomID, models.TierLifetime, "paypal", outcome.CaptureID, nil); err != nil {
			return err
		}
		if err := h.Ledger.ResetForPeriod(outcome.CustomID, models.TierLifetime); err != nil {
			log.Error().Err(err).Str("user", outcome.CustomID).Msg("credit reset after capture failed")
		}
	}
	if err := h.markOrderPaid(outcome.OrderID, outcome.CustomID, models.TierLifetime, "paypal", nil); err != nil {
		log.Warn().Err(err).Str("order", outcome.OrderID).Msg("order paid transition failed")
	}

	return c.JSON(fiber.Map{
		"ok":        true,
		"orderId":   outcome.OrderID,
		"status":    outcome.Status,
		"captureId": outcome.CaptureID,
	})
}

type paypalPlanRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency"`
	Name      string `json:"name"`
}

// CreatePayPalPlan provisions a monthly billing plan. Operational
// endpoint behind the admin guard.
func (h *Handler) CreatePayPalPlan(c *fiber.Ctx) error {
	if h.PayPal == nil {
		return middlewares.Fail(c, fiber.StatusServiceUnavailable, "not_configured", "PayPal is not configured")
	}
	var req paypalPlanRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	plan, err := h.PayPal.CreatePlan(c.UserContext(),
		req.ProductID, req.Amount, firstOf(req.Currency, "USD"), firstOf(req.Name, "AI Memojis Monthly"))
	if err != nil {
		return paypalError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "plan": plan})
}

// PayPalConfig exposes masked diagnostics so a deploy can be checked
// without shelling into the host.
func (h *Handler) PayPalConfig(c *fiber.Ctx) error {
	if h.PayPal == nil {
		return c.JSON(fiber.Map{"configured": false})
	}
	return c.JSON(fiber.Map{
		"configured": true,
		"env":        h.PayPal.Env,
		"clientId":   utils.Mask(h.PayPal.ClientID),
		"webhookId":  utils.Mask(h.PayPal.WebhookID),
	})
}

// PayPalWebhook authenticates deliveries through the verification API
// and applies the entitlement transition. Verification infrastructure
// failures are acknowledged with 200 so PayPal stops redelivering; an
// explicit verification failure is a 401.
func (h *Handler) PayPalWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if h.PayPalVerifier == nil {
		log.Warn().Msg("paypal webhook received but verification is not configured")
		metrics.WebhookEvents.WithLabelValues("paypal", "ignored").Inc()
		return c.JSON(fiber.Map{"ok": true, "verified": false})
	}

	event, err := h.PayPalVerifier.Verify(c.UserContext(), headerGetter(c), body)
	if err != nil {
		log.Error().Err(err).Msg("paypal webhook verification errored")
		metrics.WebhookEvents.WithLabelValues("paypal", "ignored").Inc()
		return c.JSON(fiber.Map{"ok": true, "verified": false})
	}
	if !event.Verified {
		metrics.WebhookEvents.WithLabelValues("paypal", "rejected").Inc()
		return middlewares.Fail(c, fiber.StatusUnauthorized, "unauthorized", "Webhook verification failed")
	}

	switch event.Kind {
	case payments.EventSubscriptionActive:
		expiry := payments.NextBillingTime(body)
		if expiry == nil {
			// Grace period until the next delivery carries billing info.
			t := time.Now().AddDate(0, 1, 0)
			expiry = &t
		}
		if event.SubjectID != "" {
			if err := h.upsertEntitlement(subjectFigma, event.SubjectID, event.Plan, "paypal", event.OrderID, expiry); err != nil {
				return err
			}
			if err := h.Ledger.ResetForPeriod(event.SubjectID, credits.NormalizeTier(event.Plan)); err != nil {
				log.Error().Err(err).Str("user", event.SubjectID).Msg("credit reset after subscription failed")
			}
		}
	case payments.EventSubscriptionEnded:
		if event.SubjectID != "" {
			now := time.Now()
			if err := h.upsertEntitlement(subjectFigma, event.SubjectID, "none", "paypal", event.OrderID, &now); err != nil {
				return err
			}
		}
	case payments.EventPaymentCompleted:
		if event.SubjectID != "" {
			if err := h.upsertEntitlement(subjectFigma, event.SubjectID, models.TierLifetime, "paypal", event.OrderID, nil); err != nil {
				return err
			}
			if err := h.Ledger.ResetForPeriod(event.SubjectID, models.TierLifetime); err != nil {
				log.Error().Err(err).Str("user", event.SubjectID).Msg("credit reset after payment failed")
			}
		}
		if err := h.markOrderPaid(event.OrderID, event.SubjectID, models.TierLifetime, "paypal", body); err != nil {
			log.Warn().Err(err).Str("order", event.OrderID).Msg("order paid transition failed")
		}
	case payments.EventRefund:
		log.Info().Str("user", event.SubjectID).Str("order", event.OrderID).Msg("paypal refund received, manual review required")
	}

	metrics.WebhookEvents.WithLabelValues("paypal", "verified").Inc()
	return c.JSON(fiber.Map{"ok": true, "verified": true})
}

// paypalError maps vendor failures onto the uniform error shape without
// leaking anything beyond the vendor's own message.
func paypalError(c *fiber.Ctx, err error) error {
	if ve, ok := err.(*payments.VendorError); ok {
		status := fiber.StatusBadGateway
		if ve.Status >= 400 && ve.Status < 500 {
			status = fiber.StatusBadRequest
		}
		return middlewares.Fail(c, status, "paypal_error", ve.Message)
	}
	return err
}
