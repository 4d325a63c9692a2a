package controllers

import (
	"errors"
	"strings"
	"time"

	"memoji-backend/credits"
	"memoji-backend/middlewares"
	"memoji-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type orderSyncRequest struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

// SyncOrder reconciles a client that completed checkout but missed the
// redirect (closed tab, dropped webhook ordering). Only orders the
// webhook already marked paid grant anything; an unpaid order is a 409
// so the client keeps polling.
func (h *Handler) SyncOrder(c *fiber.Ctx) error {
	var req orderSyncRequest
	if err := c.BodyParser(&req); err != nil {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if strings.TrimSpace(req.OrderID) == "" && strings.TrimSpace(req.UserID) == "" {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "orderId or userId is required")
	}

	var order models.Order
	q := h.DB.Order("updated_at DESC")
	if req.OrderID != "" {
		q = q.Where("order_id = ?", req.OrderID)
	} else {
		q = q.Where("user_id = ?", req.UserID)
	}
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middlewares.Fail(c, fiber.StatusNotFound, "not_found", "Order not found")
		}
		return err
	}

	if order.Status != models.OrderStatusPaid {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fiber.Map{"code": "order_not_paid", "message": "Order is not paid yet"},
			"order": fiber.Map{"orderId": order.OrderID, "status": order.Status},
		})
	}

	userID := firstOf(order.UserID, req.UserID)
	if userID == "" {
		return middlewares.Fail(c, fiber.StatusConflict, "conflict", "Paid order carries no user id")
	}
	tier := credits.NormalizeTier(order.Plan)

	col := subjectFigma
	if order.Provider == "phonepe" {
		col = subjectWeb
	}
	// Monthly plans need an expiry or the entitlement counts as expired;
	// renewals refresh it through the webhook path.
	var expiry *time.Time
	if tier != models.TierLifetime {
		t := time.Now().AddDate(0, 0, 30)
		expiry = &t
	}
	if err := h.upsertEntitlement(col, userID, tier, order.Provider, order.OrderID, expiry); err != nil {
		return err
	}
	if err := h.Ledger.ResetForPeriod(userID, tier); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("credit reset after order sync failed")
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"orderId": order.OrderID,
		"userId":  userID,
		"plan":    tier,
	})
}
