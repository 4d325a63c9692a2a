package controllers

import (
	"memoji-backend/middlewares"
	"memoji-backend/models"

	"github.com/gofiber/fiber/v2"
)

type feedbackRequest struct {
	UserID        string `json:"userId" validate:"required,max=128"`
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	ReviewComment string `json:"reviewComment" validate:"max=2000"`
}

func (h *Handler) SubmitFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	fb := models.Feedback{
		UserID:        req.UserID,
		Rating:        req.Rating,
		ReviewComment: req.ReviewComment,
	}
	if err := h.DB.Create(&fb).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "id": fb.ID})
}
