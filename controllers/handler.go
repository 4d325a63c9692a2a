package controllers

import (
	"context"
	"time"

	"memoji-backend/cache"
	"memoji-backend/credits"
	"memoji-backend/generator"
	"memoji-backend/models"
	"memoji-backend/payments"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageGenerator is the external provider boundary, narrowed so tests
// can substitute a fake.
type ImageGenerator interface {
	Generate(ctx context.Context, p generator.Params) (*generator.Result, error)
}

// BlobStore persists artifact bytes and returns a public URL.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, hash string) (string, error)
}

// Handler carries the wired dependencies for all endpoints.
type Handler struct {
	DB     *gorm.DB
	Ledger *credits.Ledger
	Cache  *cache.Cache

	Generator ImageGenerator
	Blobs     BlobStore

	PayPal   *payments.PayPalClient
	PhonePe  *payments.PhonePeClient
	Razorpay *payments.RazorpayClient

	PayPalVerifier   payments.WebhookVerifier
	PhonePeVerifier  payments.WebhookVerifier
	RazorpayVerifier payments.WebhookVerifier

	FrontendURL string
}

// Subject id columns on entitlements.
const (
	subjectFigma = "figma_user_id"
	subjectWeb   = "web_user_id"
)

// upsertEntitlement writes the durable purchase record keyed by one of
// the subject columns. Single atomic upsert; handler code never
// read-modify-writes entitlements.
func (h *Handler) upsertEntitlement(subjectCol, subjectID, plan, provider, txnID string, expiry *time.Time) error {
	ent := models.Entitlement{
		Plan:          plan,
		Expiry:        expiry,
		Provider:      provider,
		TransactionID: txnID,
		UpdatedAt:     time.Now().UTC(),
	}
	switch subjectCol {
	case subjectWeb:
		ent.WebUserID = &subjectID
	default:
		ent.FigmaUserID = &subjectID
	}
	return h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: subjectCol}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "expiry", "provider", "transaction_id", "updated_at"}),
	}).Create(&ent).Error
}

// markOrderPaid upserts the order row into its terminal paid state.
func (h *Handler) markOrderPaid(orderID, userID, plan, provider string, raw []byte) error {
	order := models.Order{
		OrderID:     orderID,
		UserID:      userID,
		Plan:        plan,
		Status:      models.OrderStatusPaid,
		Provider:    provider,
		RawResponse: raw,
		UpdatedAt:   time.Now().UTC(),
	}
	return h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "plan", "status", "provider", "raw_response", "updated_at"}),
	}).Create(&order).Error
}

// headerGetter adapts the fiber context for the webhook verifiers.
func headerGetter(c *fiber.Ctx) func(string) string {
	return func(name string) string { return c.Get(name) }
}
