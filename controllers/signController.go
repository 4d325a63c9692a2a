package controllers

import (
	"encoding/json"
	"fmt"
	"time"

	"memoji-backend/middlewares"

	"github.com/gofiber/fiber/v2"
)

// signedFields is the allow-list of payload fields the helper will
// sign. Anything else in the submitted body is dropped, so the helper
// cannot be used as a general signing oracle.
var signedFields = map[string]bool{
	"prompt":           true,
	"model":            true,
	"size":             true,
	"background":       true,
	"familyType":       true,
	"gesture":          true,
	"hair":             true,
	"skinTone":         true,
	"accessories":      true,
	"colorTheme":       true,
	"userId":           true,
	"subscriptionTier": true,
	"deviceId":         true,
}

// SignRequest signs a sanitized copy of the submitted payload for
// clients that cannot hold the shared secret themselves. The response
// includes the canonical payload bytes: the signature only matches if
// the client sends exactly that serialization.
func (h *Handler) SignRequest(c *fiber.Ctx) error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return middlewares.Fail(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	sanitized := make(map[string]json.RawMessage, len(body))
	for k, v := range body {
		if signedFields[k] {
			sanitized[k] = v
		}
	}
	payload, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}

	secret, err := middlewares.BackendSecret()
	if err != nil {
		return middlewares.Fail(c, fiber.StatusInternalServerError, "server_config", "Server configuration error")
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	return c.JSON(fiber.Map{
		"timestamp": timestamp,
		"signature": middlewares.Sign(secret, timestamp, payload),
		"payload":   json.RawMessage(payload),
	})
}
