package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"
)

const razorpayBase = "https://api.razorpay.com"

// Monthly plan prices in paise.
var RazorpayPlanPaise = map[string]int64{
	"monthly_basic":    87658,
	"monthly_standard": 175404,
	"monthly_pro":      438642,
}

type RazorpayClient struct {
	KeyID     string
	KeySecret string

	baseURL string
	http    *http.Client
}

func NewRazorpayFromEnv() *RazorpayClient {
	id := os.Getenv("RAZORPAY_KEY_ID")
	secret := os.Getenv("RAZORPAY_KEY_SECRET")
	if id == "" || secret == "" {
		return nil
	}
	return &RazorpayClient{
		KeyID:     id,
		KeySecret: secret,
		baseURL:   razorpayBase,
		http:      &http.Client{Timeout: 20 * time.Second},
	}
}

// CreateOrder opens an auto-capture order; notes carry the user/plan so
// the webhook can resolve them later.
func (r *RazorpayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (string, error) {
	body := map[string]any{
		"amount":          amountPaise,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
		"notes":           notes,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.KeyID, r.KeySecret)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &VendorError{Provider: "razorpay", Status: resp.StatusCode, Message: "create order failed"}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &out); err != nil || out.ID == "" {
		return "", &VendorError{Provider: "razorpay", Status: resp.StatusCode, Message: "malformed order response"}
	}
	return out.ID, nil
}

// RazorpayVerifier checks the X-Razorpay-Signature HMAC over the raw
// delivery body against the shared webhook secret.
type RazorpayVerifier struct {
	Secret []byte
}

func NewRazorpayVerifierFromEnv() *RazorpayVerifier {
	secret := os.Getenv("RAZORPAY_WEBHOOK_SECRET")
	if secret == "" {
		return nil
	}
	return &RazorpayVerifier{Secret: []byte(secret)}
}

func (v *RazorpayVerifier) Verify(_ context.Context, header func(string) string, body []byte) (VerifiedEvent, error) {
	sig := header("X-Razorpay-Signature")
	if sig == "" {
		return VerifiedEvent{Verified: false}, nil
	}
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return VerifiedEvent{Verified: false}, nil
	}

	var event struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity razorpayEntity `json:"entity"`
			} `json:"payment"`
			Order struct {
				Entity razorpayEntity `json:"entity"`
			} `json:"order"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return VerifiedEvent{Verified: true, Kind: EventIgnored}, nil
	}

	entity := event.Payload.Payment.Entity
	if entity.ID == "" && entity.OrderID == "" {
		entity = event.Payload.Order.Entity
	}
	out := VerifiedEvent{
		Verified:  true,
		SubjectID: entity.Notes.UserID,
		Plan:      entity.Notes.Plan,
		OrderID:   firstNonEmpty(entity.OrderID, entity.ID),
	}
	switch event.Event {
	case "payment.captured", "order.paid":
		out.Kind = EventPaymentCompleted
	default:
		out.Kind = EventIgnored
	}
	return out, nil
}

type razorpayEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Notes   struct {
		UserID string `json:"userId"`
		Plan   string `json:"plan"`
	} `json:"notes"`
}
