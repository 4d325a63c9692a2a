// Package routes wires the HTTP surface. Three tiers of protection:
// public endpoints, signed endpoints behind the HMAC gate plus the
// window limiter, and operational endpoints behind the admin JWT.
// Payment webhooks are public by necessity; each carries its own
// provider-specific verification.
package routes

import (
	"memoji-backend/controllers"
	"memoji-backend/metrics"
	"memoji-backend/middlewares"
	"memoji-backend/ratelimit"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

func Register(app *fiber.App, h *controllers.Handler, limiter *ratelimit.Limiter) {
	api := app.Group("/api")

	// Public.
	api.Get("/health", h.Health)
	api.Post("/sign", h.SignRequest)
	api.Post("/entitlement/check", h.CheckEntitlement)
	api.Post("/credits/status", h.CreditStatus)
	api.Post("/credits", h.Credits) // mutating actions check the signature themselves
	api.Post("/feedback/submit", h.SubmitFeedback)
	api.Get("/checkout", h.Checkout)

	// Signed product surface.
	api.Post("/generate-memoji",
		middlewares.RateLimit(limiter),
		middlewares.RequireSignature(),
		h.GenerateMemoji)

	// Payments.
	paypal := api.Group("/paypal")
	paypal.Post("/orders/create", h.CreatePayPalOrder)
	paypal.Post("/orders/capture", h.CapturePayPalOrder)
	paypal.Get("/config", h.PayPalConfig)
	paypal.Post("/webhook", h.PayPalWebhook)
	paypal.Post("/create-plan", middlewares.RequireAdmin(), h.CreatePayPalPlan)

	phonepe := api.Group("/phonepe")
	phonepe.Post("/checkout", h.PhonePeCheckout)
	phonepe.Post("/webhook", h.PhonePeWebhook)
	phonepe.Get("/status", h.PhonePeStatus)

	razorpay := api.Group("/razorpay")
	razorpay.Post("/checkout", h.RazorpayCheckout)
	razorpay.Post("/webhook", h.RazorpayWebhook)

	api.Post("/orders/sync", h.SyncOrder)

	// Cache maintenance: the sweep is operational, the aggregates are
	// harmless monitoring data.
	api.Post("/cache/cleanup", middlewares.RequireAdmin(), h.CleanupCache)
	api.Get("/cache/stats", h.CacheStats)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.HTTPHandler()))
}
