package payments

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	phonePeAuthURL = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	phonePePayURL  = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/pay"
)

// Plan prices in paise (sandbox).
const (
	phonePeMonthlyPaise  = 99900
	phonePeLifetimePaise = 499900
)

type PhonePeClient struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	FrontendURL   string

	timeout time.Duration
}

func NewPhonePeFromEnv() *PhonePeClient {
	id := os.Getenv("PHONEPE_CLIENT_ID")
	secret := os.Getenv("PHONEPE_CLIENT_SECRET")
	if id == "" || secret == "" {
		return nil
	}
	version := os.Getenv("PHONEPE_CLIENT_VERSION")
	if version == "" {
		version = "1.0"
	}
	frontend := os.Getenv("FRONTEND_URL")
	if frontend == "" {
		frontend = "https://aimemojis.com"
	}
	return &PhonePeClient{
		ClientID:      id,
		ClientSecret:  secret,
		ClientVersion: version,
		FrontendURL:   frontend,
		timeout:       20 * time.Second,
	}
}

func (p *PhonePeClient) httpClient(ctx context.Context) *http.Client {
	conf := &clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		TokenURL:     phonePeAuthURL,
		// PhonePe wants credentials in the form body plus its own
		// client_version parameter.
		AuthStyle:      oauth2.AuthStyleInParams,
		EndpointParams: url.Values{"client_version": {p.ClientVersion}},
	}
	client := conf.Client(ctx)
	client.Timeout = p.timeout
	return client
}

// Session is a created pay-page checkout.
type Session struct {
	OrderID     string
	RedirectURL string
	AmountPaise int64
}

// CreateSession opens a Standard Checkout pay-page session for the plan
// and returns the hosted redirect URL.
func (p *PhonePeClient) CreateSession(ctx context.Context, userID, plan string) (Session, error) {
	amount := int64(phonePeLifetimePaise)
	if plan == "monthly" {
		amount = phonePeMonthlyPaise
	}

	orderID := fmt.Sprintf("aim-%d-%s", time.Now().UnixMilli(), strings.Split(uuid.NewString(), "-")[0])
	returnURL := fmt.Sprintf("%s/?purchase=success&provider=phonepe&plan=%s&orderId=%s",
		p.FrontendURL, url.QueryEscape(plan), url.QueryEscape(orderID))

	payload := map[string]any{
		"merchantId":            p.ClientID,
		"merchantTransactionId": orderID,
		"merchantUserId":        userID,
		"amount":                amount,
		"redirectUrl":           returnURL,
		"redirectMode":          "POST",
		"callbackUrl":           p.FrontendURL + "/api/phonepe/webhook",
		"mobileNumber":          "9999999999", // sandbox requires one
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, phonePePayURL, bytes.NewReader(raw))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "sha256")

	resp, err := p.httpClient(ctx).Do(req)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, &VendorError{Provider: "phonepe", Status: resp.StatusCode, Message: "create payment failed"}
	}

	var out struct {
		Data struct {
			InstrumentResponse struct {
				RedirectInfo struct {
					URL string `json:"url"`
				} `json:"redirectInfo"`
			} `json:"instrumentResponse"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Session{}, err
	}
	redirect := out.Data.InstrumentResponse.RedirectInfo.URL
	if redirect == "" {
		return Session{}, &VendorError{Provider: "phonepe", Status: resp.StatusCode, Message: "no redirect URL from PhonePe"}
	}

	return Session{OrderID: orderID, RedirectURL: redirect, AmountPaise: amount}, nil
}

// PhonePeVerifier authenticates webhook deliveries with the shared
// Basic-auth credential configured in the PhonePe dashboard. The
// password is held as a bcrypt hash so the plaintext never sits in the
// process environment.
type PhonePeVerifier struct {
	Username     string
	PasswordHash []byte
}

// NewPhonePeVerifierFromEnv prefers PHONEPE_WEBHOOK_PASSWORD_HASH; a
// plaintext PHONEPE_WEBHOOK_PASSWORD is hashed once at startup.
func NewPhonePeVerifierFromEnv() *PhonePeVerifier {
	user := os.Getenv("PHONEPE_WEBHOOK_USER")
	if user == "" {
		return nil
	}
	if h := os.Getenv("PHONEPE_WEBHOOK_PASSWORD_HASH"); h != "" {
		return &PhonePeVerifier{Username: user, PasswordHash: []byte(h)}
	}
	if pw := os.Getenv("PHONEPE_WEBHOOK_PASSWORD"); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), 12)
		if err != nil {
			return nil
		}
		return &PhonePeVerifier{Username: user, PasswordHash: hash}
	}
	return nil
}

func (v *PhonePeVerifier) Verify(_ context.Context, header func(string) string, body []byte) (VerifiedEvent, error) {
	auth := header("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return VerifiedEvent{Verified: false}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return VerifiedEvent{Verified: false}, nil
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return VerifiedEvent{Verified: false}, nil
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(v.Username)) != 1 {
		return VerifiedEvent{Verified: false}, nil
	}
	if bcrypt.CompareHashAndPassword(v.PasswordHash, []byte(pass)) != nil {
		return VerifiedEvent{Verified: false}, nil
	}

	var event struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		UserID  string `json:"userId"`
		Plan    string `json:"plan"`
		Data    struct {
			MerchantTransactionID string `json:"merchantTransactionId"`
			UserID                string `json:"userId"`
			Metadata              struct {
				UserID string `json:"userId"`
				Plan   string `json:"plan"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return VerifiedEvent{Verified: true, Kind: EventIgnored}, nil
	}

	out := VerifiedEvent{
		Verified:  true,
		SubjectID: firstNonEmpty(event.Data.Metadata.UserID, event.UserID, event.Data.UserID),
		OrderID:   event.Data.MerchantTransactionID,
	}
	if !event.Success && event.Code != "PAYMENT_SUCCESS" {
		out.Kind = EventIgnored
		return out, nil
	}
	out.Kind = EventPaymentCompleted
	plan := firstNonEmpty(event.Data.Metadata.Plan, event.Plan, "lifetime")
	if plan == "monthly" {
		out.Plan = "subscription"
	} else {
		out.Plan = "lifetime"
	}
	return out, nil
}
