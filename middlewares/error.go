package middlewares

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Fail writes the API's uniform error shape: { error: { code, message } }.
func Fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"code": code, "message": message},
	})
}

// ErrorHandler centralizes error responses and keeps messages sanitized.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// 1) Fiber errors (use their status code + message)
	if fe, ok := err.(*fiber.Error); ok {
		return Fail(c, fe.Code, codeForStatus(fe.Code), fe.Message)
	}

	// 2) Validation errors (422 + per-field info)
	if ve, ok := err.(validator.ValidationErrors); ok {
		out := make(map[string]string, len(ve))
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "validation_failed",
				"message": "validation failed",
				"fields":  out,
			},
		})
	}

	// 3) Unknown errors (500); never leak internals to the caller
	log.Error().Err(err).Str("path", c.Path()).Msg("internal error")
	return Fail(c, fiber.StatusInternalServerError, "internal", "Internal server error")
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusPaymentRequired:
		return "out_of_credits"
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	default:
		return "internal"
	}
}
