package middlewares

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// AdminClaims is the JWT payload for operational endpoints
// (cache cleanup, plan creation).
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	adminSecretOnce sync.Once
	adminSecret     []byte
	adminSecretErr  error
)

func loadAdminSecret() error {
	adminSecretOnce.Do(func() {
		// Prefer ADMIN_JWT_SECRET, fall back to the backend secret.
		sec := os.Getenv("ADMIN_JWT_SECRET")
		if strings.TrimSpace(sec) == "" {
			sec = os.Getenv("BACKEND_SECRET")
		}
		if strings.TrimSpace(sec) == "" {
			adminSecretErr = errors.New("admin secret not configured (set ADMIN_JWT_SECRET or BACKEND_SECRET)")
			return
		}
		adminSecret = []byte(sec)
	})
	return adminSecretErr
}

// RequireAdmin validates a Bearer token, enforces HS256, and requires the
// admin role claim.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := loadAdminSecret(); err != nil {
			return Fail(c, fiber.StatusInternalServerError, "server_config", "server auth not configured")
		}

		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return Fail(c, fiber.StatusUnauthorized, "unauthorized", "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return Fail(c, fiber.StatusUnauthorized, "unauthorized", "invalid bearer token")
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		var claims AdminClaims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return adminSecret, nil
		})
		if err != nil || !token.Valid {
			return Fail(c, fiber.StatusUnauthorized, "unauthorized", "invalid or expired token")
		}
		if claims.Role != "admin" {
			return Fail(c, fiber.StatusForbidden, "forbidden", "admin role required")
		}

		c.Locals("adminSubject", claims.Subject)
		return c.Next()
	}
}

// GenerateAdminJWT signs a new HS256 admin token, expiring in 24h.
func GenerateAdminJWT(subject string) (string, error) {
	if err := loadAdminSecret(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(adminSecret)
}
