package controllers

import (
	"errors"
	"strings"
	"time"

	"memoji-backend/credits"
	"memoji-backend/middlewares"
	"memoji-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type creditsRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=get debit reset"`
	UserID string `json:"userId" validate:"required"`
	Tier   string `json:"tier"`
}

// Credits is the operational ledger endpoint: get / debit / reset.
// The mutating actions additionally require a signed request; plain
// reads do not, matching the status endpoint.
func (h *Handler) Credits(c *fiber.Ctx) error {
	var req creditsRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}
	tier := credits.NormalizeTier(defaultTier(req.Tier))

	switch req.Action {
	case "", "get":
		acct := h.Ledger.GetAccount(req.UserID, tier)
		return c.JSON(fiber.Map{"ok": true, "account": acct})
	case "debit":
		if err := middlewares.CheckSigned(c); err != nil {
			return middlewares.Fail(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
		}
		if !h.Ledger.Debit(req.UserID, tier) {
			return middlewares.Fail(c, fiber.StatusPaymentRequired, "out_of_credits", "No credits remaining")
		}
		acct := h.Ledger.GetAccount(req.UserID, tier)
		return c.JSON(fiber.Map{"ok": true, "account": acct})
	case "reset":
		if err := middlewares.CheckSigned(c); err != nil {
			return middlewares.Fail(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
		}
		if err := h.Ledger.ResetForPeriod(req.UserID, tier); err != nil {
			return err
		}
		acct := h.Ledger.GetAccount(req.UserID, tier)
		return c.JSON(fiber.Map{"ok": true, "account": acct})
	default:
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Unknown action")
	}
}

type statusRequest struct {
	UserID      string `json:"userId"`
	FigmaUserID string `json:"figmaUserId"`
}

// CreditStatus reports the combined entitlement + ledger view the
// client renders: paid plan usage when an active entitlement exists,
// free-tier usage otherwise.
func (h *Handler) CreditStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	userID := strings.TrimSpace(firstOf(req.UserID, req.FigmaUserID))
	if userID == "" {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "userId is required")
	}

	tier := models.TierFree
	if ent, err := h.findEntitlement(userID); err == nil && ent.Active(time.Now()) {
		tier = credits.NormalizeTier(ent.Plan)
	}

	acct := h.Ledger.GetAccount(userID, tier)
	resp := fiber.Map{
		"ok":           true,
		"tier":         tier,
		"month":        acct.CurrentMonth,
		"last_updated": acct.UpdatedAt,
	}
	switch tier {
	case models.TierLifetime:
		resp["monthly_total"] = credits.Unlimited
		resp["remaining"] = credits.Unlimited
		resp["used"] = 0
		resp["free_total"] = 0
		resp["free_remaining"] = 0
	case models.TierFree:
		resp["monthly_total"] = 0
		resp["remaining"] = 0
		resp["used"] = 0
		resp["free_total"] = credits.Allotment(models.TierFree)
		resp["free_remaining"] = acct.CreditsRemaining
	default:
		total := credits.Allotment(tier)
		resp["monthly_total"] = total
		resp["remaining"] = acct.CreditsRemaining
		resp["used"] = total - acct.CreditsRemaining
		resp["free_total"] = 0
		resp["free_remaining"] = 0
	}
	return c.JSON(resp)
}

// findEntitlement looks the subject up under either id column.
func (h *Handler) findEntitlement(subjectID string) (*models.Entitlement, error) {
	var ent models.Entitlement
	err := h.DB.Where("figma_user_id = ? OR web_user_id = ?", subjectID, subjectID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
