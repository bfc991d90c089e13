// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// Database
	DBPath string `envconfig:"DB_PATH" default:"lumilearn.db"`

	// Auth (session tokens issued by the auth provider, verified locally)
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	AuthMode    string        `envconfig:"AUTH_MODE" default:"jwt"` // "jwt" or "none" (tests/dev)
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// Rate limiting
	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"200"`

	// Payments provider
	PaymentsAPIKey        string        `envconfig:"PAYMENTS_API_KEY"`
	PaymentsWebhookSecret string        `envconfig:"PAYMENTS_WEBHOOK_SECRET"`
	PaymentsBaseURL       string        `envconfig:"PAYMENTS_BASE_URL"`
	CheckoutSuccessURL    string        `envconfig:"CHECKOUT_SUCCESS_URL" default:"https://app.lumilearn.io/credits/success"`
	CheckoutCancelURL     string        `envconfig:"CHECKOUT_CANCEL_URL" default:"https://app.lumilearn.io/credits/cancelled"`
	ProviderTimeout       time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`

	// Generative AI provider
	LLMAPIKey    string `envconfig:"LLM_API_KEY"`
	LLMModel     string `envconfig:"LLM_MODEL"`
	LLMMaxTokens int    `envconfig:"LLM_MAX_TOKENS" default:"1024"`

	// Text-to-speech provider
	TTSAPIKey  string `envconfig:"TTS_API_KEY"`
	TTSBaseURL string `envconfig:"TTS_BASE_URL"`

	// Reference data
	RefDataPath string `envconfig:"REFDATA_PATH" default:"refdata.yaml"`

	// Task expiry sweep
	TaskExpiryAge      time.Duration `envconfig:"TASK_EXPIRY_AGE" default:"168h"`
	TaskExpiryInterval time.Duration `envconfig:"TASK_EXPIRY_INTERVAL" default:"1h"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if cfg.AuthMode == "jwt" && cfg.JWTSecret == "" && cfg.Environment != "development" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}
	return &cfg, nil
}

// PaymentsEnabled returns true if the payments provider is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentsAPIKey != ""
}

// LLMEnabled returns true if the generative-AI provider is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}

// TTSEnabled returns true if the speech provider is configured.
func (c *Config) TTSEnabled() bool {
	return c.TTSAPIKey != ""
}
