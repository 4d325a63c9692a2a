package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	headerTimestamp     = "X-Timestamp"
	headerSignature     = "X-Signature"
	headerClientVersion = "X-Client-Version"

	// ReplayWindow is the tolerance for X-Timestamp relative to server time.
	ReplayWindow = 300 * time.Second
)

var (
	backendSecretOnce sync.Once
	backendSecret     []byte
	backendSecretErr  error
)

func loadBackendSecret() ([]byte, error) {
	backendSecretOnce.Do(func() {
		sec := strings.TrimSpace(os.Getenv("BACKEND_SECRET"))
		if sec == "" {
			backendSecretErr = errors.New("BACKEND_SECRET not configured")
			return
		}
		backendSecret = []byte(sec)
	})
	return backendSecret, backendSecretErr
}

// BackendSecret exposes the shared signing key to the sign helper
// endpoint.
func BackendSecret() ([]byte, error) {
	return loadBackendSecret()
}

// Sign computes the hex HMAC-SHA256 digest over "{timestamp}.{body}".
// The body bytes are the canonical payload: the signer must emit exactly
// the bytes the verifier will receive.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a supplied hex digest against the expected one in
// constant time. A length mismatch is an immediate "not equal"; for
// equal-length inputs the comparison does not leak the mismatch position.
func Verify(secret []byte, timestamp string, body []byte, supplied string) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(supplied))
}

// Fresh reports whether the timestamp falls inside the replay window.
// The boundary is inclusive: a 300 s old timestamp passes, 301 s fails.
func Fresh(timestamp string, now time.Time) bool {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil || ts <= 0 {
		return false
	}
	return math.Abs(float64(now.Unix()-ts)) <= ReplayWindow.Seconds()
}

// ErrServerConfig distinguishes a missing secret from a failed check.
var ErrServerConfig = errors.New("signature gate unavailable")

// CheckSigned runs the full signature check against the raw request
// body. It returns ErrServerConfig when the secret is missing and a
// plain error for every rejected request; callers collapse the latter
// into one undifferentiated 401 so probes cannot tell which check
// tripped.
func CheckSigned(c *fiber.Ctx) error {
	secret, err := loadBackendSecret()
	if err != nil {
		return ErrServerConfig
	}

	timestamp := c.Get(headerTimestamp)
	signature := c.Get(headerSignature)
	if timestamp == "" || signature == "" {
		return errors.New("missing signature headers")
	}
	if !Fresh(timestamp, time.Now()) {
		return errors.New("stale timestamp")
	}
	if !Verify(secret, timestamp, c.Body(), signature) {
		return errors.New("signature mismatch")
	}
	return nil
}

// RequireSignature verifies the X-Timestamp/X-Signature headers against
// the raw request body. X-Client-Version is informational and stashed
// in Locals.
func RequireSignature() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := CheckSigned(c); err != nil {
			if errors.Is(err, ErrServerConfig) {
				log.Error().Err(err).Msg("signature gate unavailable")
				return Fail(c, fiber.StatusInternalServerError, "server_config", "Server configuration error")
			}
			return unauthorized(c)
		}
		c.Locals("clientVersion", c.Get(headerClientVersion))
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	log.Warn().Str("ip", c.IP()).Str("path", c.Path()).Msg("request signature rejected")
	return Fail(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
}
