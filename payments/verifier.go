// Package payments holds the thin clients for the three payment vendors
// and the webhook verification variants. Vendor quirks (PayPal's
// verify-by-API, Razorpay's HMAC, PhonePe's Basic auth) stay inside
// their verifier; the entitlement logic consumes one normalized tuple.
package payments

import "context"

type EventKind string

const (
	// EventPaymentCompleted is a settled one-time payment or a captured
	// recurring charge.
	EventPaymentCompleted EventKind = "payment_completed"
	// EventSubscriptionActive covers subscription creation/activation.
	EventSubscriptionActive EventKind = "subscription_active"
	// EventSubscriptionEnded covers suspension, cancellation, expiry.
	EventSubscriptionEnded EventKind = "subscription_ended"
	EventRefund             EventKind = "refund"
	// EventIgnored is a well-formed, authenticated delivery the product
	// does not act on. It must still be acknowledged with 200.
	EventIgnored EventKind = "ignored"
)

// VerifiedEvent is the normalized outcome of webhook verification.
type VerifiedEvent struct {
	Verified  bool
	Kind      EventKind
	SubjectID string
	Plan      string
	OrderID   string
}

// WebhookVerifier authenticates one provider's webhook delivery and
// extracts the normalized event. The header accessor decouples it from
// the HTTP framework.
type WebhookVerifier interface {
	Verify(ctx context.Context, header func(string) string, body []byte) (VerifiedEvent, error)
}
