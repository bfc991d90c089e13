package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumilearn/lumilearn-backend/internal/config"
	"github.com/lumilearn/lumilearn-backend/internal/health"
	"github.com/lumilearn/lumilearn-backend/internal/httpapi"
	"github.com/lumilearn/lumilearn-backend/internal/llm"
	"github.com/lumilearn/lumilearn-backend/internal/metrics"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
	"github.com/lumilearn/lumilearn-backend/internal/refdata"
	"github.com/lumilearn/lumilearn-backend/internal/session"
	"github.com/lumilearn/lumilearn-backend/internal/store"
	"github.com/lumilearn/lumilearn-backend/internal/tts"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Bool("payments_enabled", cfg.PaymentsEnabled()).
		Bool("llm_enabled", cfg.LLMEnabled()).
		Bool("tts_enabled", cfg.TTSEnabled()).
		Msg("starting lumilearn backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	checker := health.NewChecker(logger)
	checker.Register("database", func(ctx context.Context) health.Status {
		if err := st.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	deps := httpapi.Deps{
		Store:    st,
		Checker:  checker,
		Metrics:  metrics.New(),
		Denylist: session.NewMemoryDenylist(),
	}

	if cfg.PaymentsEnabled() {
		opts := []payments.Option{payments.WithLogger(logger)}
		if cfg.PaymentsBaseURL != "" {
			opts = append(opts, payments.WithBaseURL(cfg.PaymentsBaseURL))
		}
		deps.Payments = payments.New(cfg.PaymentsAPIKey, cfg.PaymentsWebhookSecret, opts...)
		logger.Info().Msg("payments provider initialized")
	} else {
		logger.Info().Msg("payments not configured — checkout disabled")
	}

	if cfg.LLMEnabled() {
		opts := []llm.AnthropicOption{
			llm.WithLogger(logger),
			llm.WithMaxTokens(cfg.LLMMaxTokens),
		}
		if cfg.LLMModel != "" {
			opts = append(opts, llm.WithModel(cfg.LLMModel))
		}
		deps.LLM = llm.NewAnthropicProvider(cfg.LLMAPIKey, opts...)
		logger.Info().Msg("generative AI provider initialized")
	} else {
		logger.Info().Msg("LLM not configured — chat and quiz generation disabled")
	}

	if cfg.TTSEnabled() {
		opts := []tts.Option{tts.WithLogger(logger)}
		if cfg.TTSBaseURL != "" {
			opts = append(opts, tts.WithBaseURL(cfg.TTSBaseURL))
		}
		deps.TTS = tts.NewClient(cfg.TTSAPIKey, opts...)
		logger.Info().Msg("speech provider initialized")
	} else {
		logger.Info().Msg("TTS not configured — character speech disabled")
	}

	if rd, err := refdata.Load(cfg.RefDataPath, logger); err != nil {
		logger.Warn().Err(err).Str("path", cfg.RefDataPath).
			Msg("failed to load reference data (non-fatal)")
	} else {
		deps.RefData = rd
	}

	server := httpapi.NewServer(cfg, deps, logger)

	// Task expiry sweep: OPEN tasks and threads past their age limit are
	// marked EXPIRED on a fixed interval.
	if cfg.TaskExpiryInterval > 0 && cfg.TaskExpiryAge > 0 {
		go func() {
			ticker := time.NewTicker(cfg.TaskExpiryInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cutoff := time.Now().Add(-cfg.TaskExpiryAge).UnixMilli()
					tasks, err := st.ExpireOverdueTasks(ctx, cutoff)
					if err != nil {
						logger.Error().Err(err).Msg("task expiry sweep failed")
						continue
					}
					threads, err := st.ExpireOverdueThreads(ctx, cutoff)
					if err != nil {
						logger.Error().Err(err).Msg("thread expiry sweep failed")
						continue
					}
					if tasks > 0 || threads > 0 {
						logger.Info().
							Int64("tasks", tasks).
							Int64("threads", threads).
							Msg("expired overdue tasks")
					}
				}
			}
		}()
	}

	// Denylist sweep: revoked-session entries lapse at token expiry.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := deps.Denylist.Sweep(ctx); n > 0 {
					logger.Debug().Int("removed", n).Msg("swept expired session revocations")
				}
			}
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	logger.Info().Msg("lumilearn backend stopped")
}
