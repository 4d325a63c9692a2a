package middlewares

import (
	"strconv"
	"strings"

	"memoji-backend/metrics"
	"memoji-backend/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimit enforces the per-caller window limiter and attaches the
// X-RateLimit-* headers. Keyed on the first X-Forwarded-For hop, falling
// back to the connection address. Spoofable by design: the limiter is
// defense-in-depth in front of the signature gate, not a boundary.
func RateLimit(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := callerKey(c)
		res := limiter.Check(c.UserContext(), key)

		c.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			metrics.RateLimited.Inc()
			log.Warn().Str("ip", key).Msg("rate limit exceeded")
			return Fail(c, fiber.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}

func callerKey(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return "unknown"
}
