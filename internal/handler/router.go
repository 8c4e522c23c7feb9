package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/support-agent/internal/middleware"
	"github.com/capitalize-ai/support-agent/internal/service"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

// RouterConfig holds what the router needs.
type RouterConfig struct {
	Chat       *service.ChatService
	Resolution *service.ResolutionService
	Checks     map[string]Pinger
	Logger     *logger.Logger

	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// AllowedOrigins for CORS; empty allows any origin without credentials.
	AllowedOrigins []string
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.Checks)
	messageHandler := NewMessageHandler(cfg.Chat, cfg.Logger)
	streamHandler := NewStreamHandler(cfg.Chat, cfg.Logger)
	ticketHandler := NewTicketHandler(cfg.Resolution, cfg.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/threads/{threadID}", func(r chi.Router) {
			r.Use(middleware.ThreadAccess)

			if cfg.RateLimitRequests > 0 {
				// A thread gets a quarter of its tenant's budget.
				r.With(middleware.ThreadRateLimit(max(cfg.RateLimitRequests/4, 1), cfg.RateLimitWindow)).
					Post("/messages", messageHandler.Send)
			} else {
				r.Post("/messages", messageHandler.Send)
			}
			r.Get("/history", messageHandler.List)
			r.Get("/stream", streamHandler.Stream)
			r.Get("/ticket", ticketHandler.Get)
			r.With(middleware.RequireScope(middleware.ScopeResolve)).Post("/resolve", ticketHandler.Resolve)
		})
	})

	return r
}
