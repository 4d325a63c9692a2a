package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"
)

type PayPalClient struct {
	Env       string
	ClientID  string
	Secret    string
	WebhookID string

	timeout time.Duration
}

// NewPayPalFromEnv returns nil when credentials are missing so callers
// can degrade the endpoints instead of panicking at startup.
func NewPayPalFromEnv() *PayPalClient {
	id := os.Getenv("PAYPAL_CLIENT_ID")
	secret := os.Getenv("PAYPAL_SECRET")
	if id == "" || secret == "" {
		return nil
	}
	env := os.Getenv("PAYPAL_ENV")
	if env == "" {
		env = "sandbox"
	}
	return &PayPalClient{
		Env:       env,
		ClientID:  id,
		Secret:    secret,
		WebhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),
		timeout:   20 * time.Second,
	}
}

func (p *PayPalClient) Base() string {
	if p.Env == "live" {
		return paypalLiveBase
	}
	return paypalSandboxBase
}

// httpClient returns a client that injects OAuth client-credentials
// tokens (cached and refreshed by the oauth2 transport).
func (p *PayPalClient) httpClient(ctx context.Context) *http.Client {
	conf := &clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.Secret,
		TokenURL:     p.Base() + "/v1/oauth2/token",
	}
	client := conf.Client(ctx)
	client.Timeout = p.timeout
	return client
}

// CreateOrder opens a CAPTURE-intent order bound to the purchasing user
// via custom_id (PayPal caps it at 127 chars).
func (p *PayPalClient) CreateOrder(ctx context.Context, amount, currency, title, userID string) (string, error) {
	if len(userID) > 127 {
		userID = userID[:127]
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount":      map[string]string{"currency_code": currency, "value": amount},
			"description": title,
			"custom_id":   userID,
		}},
		"application_context": map[string]string{"shipping_preference": "NO_SHIPPING"},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.postJSON(ctx, "/v2/checkout/orders", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("paypal create order: empty order id")
	}
	return out.ID, nil
}

// CaptureOutcome is the subset of a capture response the product needs.
type CaptureOutcome struct {
	OrderID   string
	Status    string
	CustomID  string
	CaptureID string
	Amount    string
	Currency  string
}

func (p *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (CaptureOutcome, error) {
	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Amount struct {
						Value        string `json:"value"`
						CurrencyCode string `json:"currency_code"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID)
	if err := p.postJSON(ctx, path, map[string]any{}, &out); err != nil {
		return CaptureOutcome{}, err
	}

	outcome := CaptureOutcome{OrderID: out.ID, Status: out.Status}
	if len(out.PurchaseUnits) > 0 {
		pu := out.PurchaseUnits[0]
		outcome.CustomID = pu.CustomID
		if len(pu.Payments.Captures) > 0 {
			capt := pu.Payments.Captures[0]
			outcome.CaptureID = capt.ID
			outcome.Amount = capt.Amount.Value
			outcome.Currency = capt.Amount.CurrencyCode
		}
	}
	return outcome, nil
}

// CreatePlan provisions a monthly billing plan for a product id
// (operational endpoint, not part of the purchase flow).
func (p *PayPalClient) CreatePlan(ctx context.Context, productID, amount, currency, name string) (json.RawMessage, error) {
	body := map[string]any{
		"product_id": productID,
		"name":       name,
		"status":     "ACTIVE",
		"billing_cycles": []map[string]any{{
			"frequency":    map[string]any{"interval_unit": "MONTH", "interval_count": 1},
			"tenure_type":  "REGULAR",
			"sequence":     1,
			"total_cycles": 0,
			"pricing_scheme": map[string]any{
				"fixed_price": map[string]string{"value": amount, "currency_code": currency},
			},
		}},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding":    true,
			"setup_fee_failure_action": "CONTINUE",
			"payment_failure_threshold": 1,
		},
	}
	var out json.RawMessage
	if err := p.postJSON(ctx, "/v1/billing/plans", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PayPalClient) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Base()+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient(ctx).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := "paypal request failed"
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &VendorError{Provider: "paypal", Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		return json.Unmarshal(payload, out)
	}
	return nil
}

// VendorError is a sanitized upstream failure; Message is safe to show.
type VendorError struct {
	Provider string
	Status   int
	Message  string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.Status, e.Message)
}

// paypalEvent is the envelope of a webhook delivery.
type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		PlanID   string `json:"plan_id"`
		Subscriber struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
		} `json:"billing_info"`
	} `json:"resource"`
}

// PayPalVerifier authenticates deliveries through PayPal's
// verify-webhook-signature API (cert-based verification happens on
// PayPal's side; we forward the transmission headers).
type PayPalVerifier struct {
	Client *PayPalClient
}

func (v *PayPalVerifier) Verify(ctx context.Context, header func(string) string, body []byte) (VerifiedEvent, error) {
	if v.Client == nil || v.Client.WebhookID == "" {
		return VerifiedEvent{}, fmt.Errorf("paypal webhook verification not configured")
	}

	verifyBody := map[string]any{
		"transmission_id":   header("Paypal-Transmission-Id"),
		"transmission_time": header("Paypal-Transmission-Time"),
		"cert_url":          header("Paypal-Cert-Url"),
		"auth_algo":         header("Paypal-Auth-Algo"),
		"transmission_sig":  header("Paypal-Transmission-Sig"),
		"webhook_id":        v.Client.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}
	var verifyOut struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := v.Client.postJSON(ctx, "/v1/notifications/verify-webhook-signature", verifyBody, &verifyOut); err != nil {
		return VerifiedEvent{}, err
	}
	if verifyOut.VerificationStatus != "SUCCESS" {
		return VerifiedEvent{Verified: false}, nil
	}

	var event paypalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return VerifiedEvent{Verified: true, Kind: EventIgnored}, nil
	}

	out := VerifiedEvent{Verified: true, OrderID: event.Resource.ID}
	switch event.EventType {
	case "BILLING.SUBSCRIPTION.CREATED", "BILLING.SUBSCRIPTION.ACTIVATED":
		out.Kind = EventSubscriptionActive
		out.Plan = "subscription"
		out.SubjectID = firstNonEmpty(event.Resource.CustomID, event.Resource.Subscriber.PayerID)
	case "BILLING.SUBSCRIPTION.SUSPENDED", "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED":
		out.Kind = EventSubscriptionEnded
		out.Plan = "none"
		out.SubjectID = firstNonEmpty(event.Resource.CustomID, event.Resource.Subscriber.PayerID)
	case "PAYMENT.SALE.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		out.Kind = EventPaymentCompleted
		out.Plan = "lifetime"
		out.SubjectID = event.Resource.CustomID
	case "PAYMENT.CAPTURE.REFUNDED":
		out.Kind = EventRefund
		out.SubjectID = event.Resource.CustomID
	default:
		out.Kind = EventIgnored
	}
	return out, nil
}

// NextBillingTime surfaces the subscription expiry carried by a webhook
// body, when present.
func NextBillingTime(body []byte) *time.Time {
	var event paypalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil
	}
	if event.Resource.BillingInfo.NextBillingTime == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, event.Resource.BillingInfo.NextBillingTime)
	if err != nil {
		return nil
	}
	return &t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
