package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))

		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_123",
			"url": "https://checkout.example.com/cs_123",
		})
	}))
	defer srv.Close()

	c := New("sk_test", "whsec", WithBaseURL(srv.URL))
	sess, err := c.CreateCheckoutSession(context.Background(), CheckoutRequest{
		AmountMinor: 2500,
		Currency:    "usd",
		SuccessURL:  "https://app/success",
		CancelURL:   "https://app/cancel",
		Metadata:    map[string]string{"user_id": "user-1", "operation": "CREDIT_TOPUP"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", sess.ID)
	assert.Equal(t, "https://checkout.example.com/cs_123", sess.URL)
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "internal gateway error"},
		})
	}))
	defer srv.Close()

	c := New("sk_test", "whsec", WithBaseURL(srv.URL))
	_, err := c.CreateCheckoutSession(context.Background(), CheckoutRequest{AmountMinor: 100, Currency: "usd"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	// The client-safe message must not carry provider internals.
	assert.NotContains(t, apperr.ClientMessage(err), "gateway")
}

func TestVerifyWebhook(t *testing.T) {
	c := New("sk_test", "whsec")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","session":{"id":"cs_123"},"metadata":{"user_id":"u1"}}`)

	evt, err := c.VerifyWebhook(payload, c.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	assert.Equal(t, "cs_123", evt.Session.ID)
	assert.Equal(t, "u1", evt.Meta["user_id"])
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	c := New("sk_test", "whsec")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	_, err := c.VerifyWebhook(payload, "deadbeef")
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	_, err = c.VerifyWebhook(payload, "")
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerifyWebhook_MalformedPayload(t *testing.T) {
	c := New("sk_test", "whsec")
	payload := []byte(`not json`)
	_, err := c.VerifyWebhook(payload, c.Sign(payload))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	missing := []byte(`{}`)
	_, err = c.VerifyWebhook(missing, c.Sign(missing))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
