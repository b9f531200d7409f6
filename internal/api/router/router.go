package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/multiplay-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/multiplay-assistant/internal/http/middleware"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Webhook *handlers.WebhookHandler
	Status  *handlers.StatusHandler
	// WebhookLimiter throttles /webhook per client IP when set.
	WebhookLimiter  *httpmiddleware.IPRateLimiter
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(httpmiddleware.Recoverer(cfg.Logger))

	r.Group(func(public chi.Router) {
		if cfg.Webhook != nil {
			webhook := public.With()
			if cfg.WebhookLimiter != nil {
				webhook = public.With(httpmiddleware.RateLimit(cfg.WebhookLimiter))
			}
			webhook.Method(http.MethodPost, "/webhook", cfg.Webhook)
		}
		if cfg.Status != nil {
			public.Get("/health", cfg.Status.Health)
			public.Get("/", cfg.Status.Home)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Operator endpoints are open unless an admin secret is configured.
	if cfg.Status != nil {
		r.Group(func(admin chi.Router) {
			if cfg.AdminAuthSecret != "" {
				admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			}
			admin.Get("/stats", cfg.Status.Stats)
			admin.Post("/admin/clear-cache", cfg.Status.ClearCache)
			admin.Post("/clear-cache", cfg.Status.ClearCache)
		})
	}

	return r
}
