// Package tts synthesizes character speech through an external voice API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

const defaultBaseURL = "https://api.voiceforge.example.com/v1"

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// SynthesisRequest describes one utterance.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Format  string // "mp3" when empty
}

// SynthesisResult carries the encoded audio.
type SynthesisResult struct {
	Audio       []byte
	ContentType string
}

// Client talks to the voice synthesis API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a voice API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesisPayload struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Format  string `json:"format"`
}

type synthesisError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize renders req.Text with the requested voice and returns the
// encoded audio. Upstream failures are wrapped so the caller surfaces a
// generic message only.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, apperr.E(apperr.KindValidation, "text is required")
	}
	if req.VoiceID == "" {
		return nil, apperr.E(apperr.KindValidation, "voice_id is required")
	}
	format := req.Format
	if format == "" {
		format = "mp3"
	}

	body, err := json.Marshal(synthesisPayload{Text: req.Text, VoiceID: req.VoiceID, Format: format})
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "speech synthesis failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "speech synthesis failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "synthesis failed"
		var se synthesisError
		if json.Unmarshal(raw, &se) == nil && se.Error.Message != "" {
			msg = se.Error.Message
		}
		c.logger.Error().Int("status", resp.StatusCode).Str("provider_message", msg).
			Msg("speech synthesis failed")
		return nil, apperr.Wrap(apperr.KindUpstream, "speech synthesis failed",
			apperr.NewAPIError("tts", resp.StatusCode, msg))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &SynthesisResult{Audio: raw, ContentType: ct}, nil
}
