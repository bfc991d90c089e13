// Package payments wraps the hosted-checkout payment provider. The provider
// handles cards, PCI compliance and the actual charge; this client only
// creates checkout sessions and verifies webhook deliveries.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

const defaultBaseURL = "https://api.paylane.example.com/v1"

// Client talks to the payment provider's REST API.
type Client struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	logger        zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint (tests, sandboxes).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New constructs a payment provider client.
func New(apiKey, webhookSecret string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CheckoutRequest describes a hosted checkout session to create. Metadata is
// echoed back on the webhook and is how the confirmation is reconciled with
// the credit ledger.
type CheckoutRequest struct {
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CheckoutSession is the created hosted session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type sessionResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateCheckoutSession creates a hosted checkout session. This call is not
// idempotent and must not be retried automatically.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", req.Currency)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checkout/sessions", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build checkout request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "payment provider unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to read provider response", err)
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "malformed provider response",
			apperr.NewAPIError("payments", resp.StatusCode, string(body)))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := "checkout session creation failed"
		if sr.Error != nil {
			msg = sr.Error.Message
		}
		c.logger.Error().Int("status", resp.StatusCode).Str("provider_message", msg).
			Msg("checkout session creation failed")
		return nil, apperr.Wrap(apperr.KindUpstream, "checkout session creation failed",
			apperr.NewAPIError("payments", resp.StatusCode, msg))
	}

	return &CheckoutSession{ID: sr.ID, URL: sr.URL}, nil
}

// Event types delivered on the webhook.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// Event is a verified webhook delivery.
type Event struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Session CheckoutSession   `json:"session"`
	Meta    map[string]string `json:"metadata"`
}

// VerifyWebhook checks the HMAC signature of a webhook payload and parses
// the event. Deliveries with a bad signature are rejected before parsing.
func (c *Client) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, apperr.E(apperr.KindUnauthenticated, "invalid webhook signature")
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "malformed webhook payload", err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, apperr.E(apperr.KindValidation, "webhook payload missing id or type")
	}
	return &evt, nil
}

// Sign computes the webhook signature for a payload. Exposed for tests.
func (c *Client) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
