package payments

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testPhonePeVerifier(t *testing.T) *PhonePeVerifier {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return &PhonePeVerifier{Username: "merchant", PasswordHash: hash}
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestPhonePeVerifyAcceptsValidCredentials(t *testing.T) {
	v := testPhonePeVerifier(t)
	body := []byte(`{
		"success": true,
		"code": "PAYMENT_SUCCESS",
		"data": {
			"merchantTransactionId": "aim-1",
			"metadata": {"userId": "web-7", "plan": "monthly"}
		}
	}`)

	event, err := v.Verify(context.Background(),
		headers(map[string]string{"Authorization": basicAuth("merchant", "hunter2")}), body)
	require.NoError(t, err)
	assert.True(t, event.Verified)
	assert.Equal(t, EventPaymentCompleted, event.Kind)
	assert.Equal(t, "web-7", event.SubjectID)
	assert.Equal(t, "subscription", event.Plan)
	assert.Equal(t, "aim-1", event.OrderID)
}

func TestPhonePeVerifyLifetimeDefault(t *testing.T) {
	v := testPhonePeVerifier(t)
	body := []byte(`{"success": true, "data": {"metadata": {"userId": "web-8"}}}`)

	event, err := v.Verify(context.Background(),
		headers(map[string]string{"Authorization": basicAuth("merchant", "hunter2")}), body)
	require.NoError(t, err)
	assert.Equal(t, "lifetime", event.Plan)
}

func TestPhonePeVerifyRejections(t *testing.T) {
	v := testPhonePeVerifier(t)
	body := []byte(`{"success": true}`)

	cases := []struct {
		name string
		auth string
	}{
		{"no header", ""},
		{"not basic", "Bearer token"},
		{"bad base64", "Basic %%%"},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("merchant"))},
		{"wrong user", basicAuth("intruder", "hunter2")},
		{"wrong password", basicAuth("merchant", "wrong")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := v.Verify(context.Background(),
				headers(map[string]string{"Authorization": tc.auth}), body)
			require.NoError(t, err)
			assert.False(t, event.Verified)
		})
	}
}

func TestPhonePeVerifyFailedPaymentIgnored(t *testing.T) {
	v := testPhonePeVerifier(t)
	body := []byte(`{"success": false, "code": "PAYMENT_ERROR", "data": {"merchantTransactionId": "aim-2"}}`)

	event, err := v.Verify(context.Background(),
		headers(map[string]string{"Authorization": basicAuth("merchant", "hunter2")}), body)
	require.NoError(t, err)
	assert.True(t, event.Verified, "authenticated delivery")
	assert.Equal(t, EventIgnored, event.Kind)
	assert.Equal(t, "aim-2", event.OrderID)
}
