package main

import (
	"os"
	"time"

	"memoji-backend/cache"
	"memoji-backend/controllers"
	"memoji-backend/credits"
	"memoji-backend/database"
	"memoji-backend/generator"
	"memoji-backend/middlewares"
	"memoji-backend/payments"
	"memoji-backend/ratelimit"
	"memoji-backend/routes"
	"memoji-backend/storage"
	"memoji-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging() {
	level, err := zerolog.ParseLevel(utils.EnvStr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if utils.EnvStr("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// buildLimiter picks the counter store: Redis when configured, a
// process-local map otherwise.
func buildLimiter() *ratelimit.Limiter {
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		client, err := ratelimit.ConnectRedis(redisURL)
		if err == nil {
			log.Info().Msg("rate limiter using redis store")
			return ratelimit.New(ratelimit.NewRedisStore(client))
		}
		log.Warn().Err(err).Msg("redis unavailable, using in-memory rate limiter")
	}
	return ratelimit.New(ratelimit.NewMemoryStore())
}

func main() {
	setupLogging()

	// ---- Database
	db := database.Connect()
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// ---- Dependencies
	paypalClient := payments.NewPayPalFromEnv()
	h := &controllers.Handler{
		DB:          db,
		Ledger:      credits.NewLedger(db),
		Cache:       cache.New(db),
		PayPal:      paypalClient,
		PhonePe:     payments.NewPhonePeFromEnv(),
		Razorpay:    payments.NewRazorpayFromEnv(),
		FrontendURL: utils.EnvStr("FRONTEND_URL", "https://aimemojis.com"),
	}
	// Nil checks stay on the concrete types so an unconfigured verifier
	// is a nil interface, not a typed nil.
	if v := payments.NewRazorpayVerifierFromEnv(); v != nil {
		h.RazorpayVerifier = v
	}
	if v := payments.NewPhonePeVerifierFromEnv(); v != nil {
		h.PhonePeVerifier = v
	}
	if gen := generator.NewClientFromEnv(); gen != nil {
		h.Generator = gen
	} else {
		log.Warn().Msg("OPENAI_API_KEY missing, generation disabled")
	}
	if blobs := storage.NewClientFromEnv(); blobs != nil {
		h.Blobs = blobs
	} else {
		log.Warn().Msg("storage not configured, artifacts served from provider URLs")
	}
	if paypalClient != nil && paypalClient.WebhookID != "" {
		h.PayPalVerifier = &payments.PayPalVerifier{Client: paypalClient}
	}

	// ---- Fiber app with global error handler + body limit
	bodyLimitBytes := utils.EnvInt("BODY_LIMIT_BYTES", 0)
	if bodyLimitBytes <= 0 {
		bodyLimitBytes = utils.EnvInt("BODY_LIMIT_MB", 8) * 1024 * 1024
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    bodyLimitBytes,
	})

	// ---- CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     utils.EnvStr("ALLOWED_ORIGINS", "*"),
		AllowCredentials: false,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Timestamp, X-Signature, X-Client-Version",
	}))

	// ---- Coarse global limiter in front of everything; the generation
	// endpoint gets its own stricter per-caller window on top.
	app.Use(limiter.New(limiter.Config{
		Max:        utils.EnvInt("GLOBAL_RATE_LIMIT_MAX", 120),
		Expiration: time.Duration(utils.EnvInt("GLOBAL_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}))

	// ---- Routes
	routes.Register(app, h, buildLimiter())

	// ---- Start
	port := utils.EnvStr("PORT", "8080")
	log.Info().Str("port", port).Msg("starting API server")
	if err := app.Listen(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
