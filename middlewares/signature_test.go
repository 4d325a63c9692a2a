package middlewares

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// The secret is loaded once per process, so it must be set before any
	// test touches the gate.
	os.Setenv("BACKEND_SECRET", "test-secret")
	os.Exit(m.Run())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	body := []byte(`{"prompt":"a father with short hair"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	sig := Sign(secret, ts, body)
	assert.Len(t, sig, 64) // hex sha256
	assert.True(t, Verify(secret, ts, body, sig))
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := []byte("test-secret")
	body := []byte(`{"prompt":"original"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	sig := Sign(secret, ts, body)

	assert.False(t, Verify(secret, ts, []byte(`{"prompt":"tampered"}`), sig), "body flip")
	assert.False(t, Verify(secret, fmt.Sprintf("%d", time.Now().Unix()+1), body, sig), "timestamp flip")
	assert.False(t, Verify([]byte("other-secret"), ts, body, sig), "wrong secret")

	// Single hex digit flipped.
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, Verify(secret, ts, body, string(flipped)))
}

func TestFreshBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name   string
		offset int64
		want   bool
	}{
		{"current", 0, true},
		{"exactly window old", -300, true},
		{"one past window", -301, false},
		{"exactly window ahead", 300, true},
		{"one past ahead", 301, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := fmt.Sprintf("%d", now.Unix()+tc.offset)
			assert.Equal(t, tc.want, Fresh(ts, now))
		})
	}
}

func TestFreshGarbage(t *testing.T) {
	now := time.Now()
	assert.False(t, Fresh("", now))
	assert.False(t, Fresh("not-a-number", now))
	assert.False(t, Fresh("-5", now))
	assert.False(t, Fresh("0", now))
}

func signedApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/protected", RequireSignature(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestRequireSignatureAccepts(t *testing.T) {
	app := signedApp()
	body := []byte(`{"x":1}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	req := httptest.NewRequest("POST", "/protected", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", Sign([]byte("test-secret"), ts, body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireSignatureRejects(t *testing.T) {
	app := signedApp()
	body := []byte(`{"x":1}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	good := Sign([]byte("test-secret"), ts, body)
	stale := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())

	cases := []struct {
		name    string
		headers map[string]string
	}{
		{"no headers", nil},
		{"missing signature", map[string]string{"X-Timestamp": ts}},
		{"missing timestamp", map[string]string{"X-Signature": good}},
		{"stale timestamp", map[string]string{
			"X-Timestamp": stale,
			"X-Signature": Sign([]byte("test-secret"), stale, body),
		}},
		{"bad signature", map[string]string{"X-Timestamp": ts, "X-Signature": "deadbeef"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/protected", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
