// Package httpapi exposes the platform over HTTP+JSON using Fiber.
package httpapi

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/lumilearn/lumilearn-backend/internal/cache"
	"github.com/lumilearn/lumilearn-backend/internal/config"
	"github.com/lumilearn/lumilearn-backend/internal/domain"
	"github.com/lumilearn/lumilearn-backend/internal/health"
	"github.com/lumilearn/lumilearn-backend/internal/llm"
	"github.com/lumilearn/lumilearn-backend/internal/metrics"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
	"github.com/lumilearn/lumilearn-backend/internal/refdata"
	"github.com/lumilearn/lumilearn-backend/internal/requestid"
	"github.com/lumilearn/lumilearn-backend/internal/session"
	"github.com/lumilearn/lumilearn-backend/internal/store"
	"github.com/lumilearn/lumilearn-backend/internal/tts"
)

// Deps bundles the services the HTTP layer depends on. Payments, LLM and
// TTS may be nil when the corresponding provider is not configured.
type Deps struct {
	Store    *store.Store
	Payments *payments.Client
	LLM      llm.Provider
	TTS      tts.Synthesizer
	RefData  *refdata.Cache
	Checker  *health.Checker
	Metrics  *metrics.Metrics
	Denylist session.Denylist
}

// Server is the Fiber application serving the public API.
type Server struct {
	app    *fiber.App
	h      *Handlers
	cfg    *config.Config
	logger zerolog.Logger
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store      *store.Store
	payments   *payments.Client
	llm        llm.Provider
	tts        tts.Synthesizer
	refdata    *refdata.Cache
	checker    *health.Checker
	metrics    *metrics.Metrics
	denylist   session.Denylist
	characters *cache.LRU[string, *domain.Character]
	cfg        *config.Config
	logger     zerolog.Logger
	startTime  time.Time
}

// NewServer creates and configures the API server.
func NewServer(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	h := &Handlers{
		store:      deps.Store,
		payments:   deps.Payments,
		llm:        deps.LLM,
		tts:        deps.TTS,
		refdata:    deps.RefData,
		checker:    deps.Checker,
		metrics:    deps.Metrics,
		denylist:   deps.Denylist,
		characters: cache.NewLRU[string, *domain.Character](128),
		cfg:        cfg,
		logger:     logger.With().Str("component", "handlers").Logger(),
		startTime:  time.Now(),
	}

	s := &Server{
		app:    app,
		h:      h,
		cfg:    cfg,
		logger: logger.With().Str("component", "http_server").Logger(),
	}

	s.setupMiddleware(logger)
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware(logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if s.cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		}))
	}

	if s.cfg.RateLimitRPS > 0 {
		s.app.Use(NewRateLimitMiddleware(RateLimitConfig{
			RPS:   s.cfg.RateLimitRPS,
			Burst: s.cfg.RateLimitBurst,
		}))
	}

	s.app.Use(NewAuthMiddleware(AuthConfig{
		Mode:     s.cfg.AuthMode,
		Secret:   s.cfg.JWTSecret,
		Denylist: s.h.denylist,
	}, logger))

	// Request log + metrics. Probe endpoints are skipped to keep logs quiet.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := c.Route().Path
		status := c.Response().StatusCode()
		if s.h.metrics != nil {
			s.h.metrics.RecordRequest(route, strconv.Itoa(status))
			s.h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("ip", c.IP()).
			Str("request_id", reqIDFromLocals(c)).
			Msg("api request")

		return err
	})
}

// providerContext bounds an external provider call by the configured
// timeout.
func (h *Handlers) providerContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := h.cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(c.Context(), timeout)
}

func reqIDFromLocals(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

func (s *Server) setupRoutes() {
	h := s.h
	log := s.logger

	// Probe endpoints (no auth, handled in auth middleware).
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)
	if h.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	// Session
	v1.Get("/me", h.Me)
	v1.Post("/auth/logout", h.Logout)
	if s.cfg.Environment == "development" {
		v1.Post("/auth/dev-token", h.DevToken)
	}
	v1.Get("/users/children", requireRole(log, domain.RoleParent), h.ListChildren)

	// Tasks and threads
	v1.Post("/tasks", requireRole(log, domain.RoleParent, domain.RoleTeacher), h.CreateTask)
	v1.Get("/tasks", h.ListTasks)
	v1.Get("/tasks/:id", h.GetTask)
	v1.Post("/tasks/:id/close", h.CloseTask)
	v1.Post("/tasks/:id/start", h.StartTask)
	v1.Get("/tasks/:id/threads", h.ListThreads)
	v1.Post("/tasks/:id/threads", requireRole(log, domain.RoleParent, domain.RoleTeacher), h.CreateThread)
	v1.Post("/tasks/complete/:threadId", h.CompleteThread)
	v1.Put("/tasks/update-generation/:threadId", h.UpdateGeneration)

	// Credits
	v1.Get("/credits/internal-balance", h.InternalBalance)
	v1.Post("/credits/top-up", h.TopUp)
	v1.Post("/credits/transfer", requireRole(log, domain.RoleParent), h.Transfer)
	v1.Get("/credits/history", h.CreditHistory)

	// Orders
	v1.Post("/orders", h.CreateOrder)
	v1.Get("/orders", h.ListOrders)
	v1.Get("/orders/:id", h.GetOrder)
	v1.Post("/orders/:id/approve", requireRole(log, domain.RoleParent), h.ApproveOrder)
	v1.Post("/orders/:id/reject", requireRole(log, domain.RoleParent), h.RejectOrder)

	// Characters, chat, speech
	v1.Get("/characters", h.ListCharacters)
	v1.Get("/characters/:id", h.GetCharacter)
	v1.Post("/characters/:id/speak", h.Speak)
	v1.Post("/chat/threads", h.CreateChatThread)
	v1.Get("/chat/threads", h.ListChatThreads)
	v1.Get("/chat/threads/:id/messages", h.ListChatMessages)
	v1.Post("/chat/threads/:id/messages", h.PostChatMessage)

	// Catalog, notes, wishlist
	v1.Get("/products", h.ListProducts)
	v1.Get("/products/:id", h.GetProduct)
	v1.Get("/notes", h.ListNotes)
	v1.Post("/notes", h.CreateNote)
	v1.Get("/notes/:id", h.GetNote)
	v1.Put("/notes/:id", h.UpdateNote)
	v1.Delete("/notes/:id", h.DeleteNote)
	v1.Get("/wishlist", h.ListWishlist)
	v1.Post("/wishlist", h.AddWishlistItem)
	v1.Delete("/wishlist/:id", h.RemoveWishlistItem)

	// Reference data
	v1.Get("/refdata/:table", h.GetRefTable)

	// Health detail
	v1.Get("/health", h.HealthDetail)

	// Webhooks (signature-authenticated)
	v1.Post("/webhooks/payments", h.PaymentsWebhook)

	// Admin
	admin := v1.Group("/admin", requireRole(log))
	admin.Put("/orders/:id/status", h.AdminUpdateOrderStatus)
	admin.Get("/orders", h.AdminListOrders)
	admin.Post("/credits/adjust", h.AdminAdjustCredits)
	admin.Post("/users", h.AdminCreateUser)
	admin.Post("/characters", h.AdminCreateCharacter)
	admin.Put("/characters/:id", h.AdminUpdateCharacter)
	admin.Delete("/characters/:id", h.AdminDeactivateCharacter)
	admin.Post("/products", h.AdminCreateProduct)
	admin.Put("/products/:id", h.AdminUpdateProduct)
	admin.Delete("/products/:id", h.AdminDeactivateProduct)
	admin.Post("/refdata/reload", h.AdminReloadRefData)
	admin.Get("/audit/:entityType/:entityId", h.AdminListAudit)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
