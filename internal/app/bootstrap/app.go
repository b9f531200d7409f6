package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/multiplay-assistant/internal/api/router"
	appconfig "github.com/wolfman30/multiplay-assistant/internal/config"
	"github.com/wolfman30/multiplay-assistant/internal/conversation"
	"github.com/wolfman30/multiplay-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/multiplay-assistant/internal/http/middleware"
	"github.com/wolfman30/multiplay-assistant/internal/janitor"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// App is the assembled service: an HTTP handler plus the background janitor.
type App struct {
	Handler http.Handler
	Janitor *janitor.Janitor
	Parts   *EngineParts

	closers []func() error
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Messenger conversation.Messenger
	LLM       conversation.LLMClient
	Registry  *prometheus.Registry
	Clock     func() time.Time
}

// New builds the service from cfg.
func New(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	botMetrics := metrics.NewBotMetrics(reg)

	hours, err := BuildBusinessHours(cfg)
	if err != nil {
		return nil, err
	}

	messenger := opts.Messenger
	if messenger == nil {
		client, err := BuildMessenger(cfg, logger)
		if err != nil {
			return nil, err
		}
		messenger = client
	}

	llm := opts.LLM
	if llm == nil {
		client, closeLLM, err := BuildLLMClient(ctx, cfg, logger, botMetrics)
		if err != nil {
			return nil, err
		}
		llm = client
		app.closers = append(app.closers, closeLLM)
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
	}
	store := BuildSessionStore(redisClient, cfg, logger)

	parts, err := BuildEngine(cfg, EngineDeps{
		Store:     store,
		LLM:       llm,
		Messenger: messenger,
		Hours:     hours,
		Metrics:   botMetrics,
		Clock:     opts.Clock,
	}, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Parts = parts

	// The gateway posts every sender's callbacks from a few shared IPs, so a
	// per-IP budget caps all traffic at once. It stays off unless configured.
	var ipLimiter *httpmiddleware.IPRateLimiter
	if cfg.WebhookIPRate > 0 {
		ipLimiter = httpmiddleware.NewIPRateLimiter(cfg.WebhookIPRate, cfg.WebhookIPBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger:  logger,
		Webhook: handlers.NewWebhookHandler(parts.Engine, logger),
		Status: handlers.NewStatusHandler(handlers.StatusConfig{
			Engine:  parts.Engine,
			Cache:   parts.Cache,
			Dedup:   parts.Dedup,
			Limiter: parts.Limiter,
			Hours:   hours,
			Version: appconfig.Version,
			Logger:  logger,
		}),
		WebhookLimiter:  ipLimiter,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	j := janitor.New(logger, botMetrics,
		janitor.SessionTask(store, janitor.SessionPolicy{
			SessionTTL: cfg.SessionTTL,
			SupportTTL: cfg.SupportSessionTTL,
		}),
		janitor.SweepFunc("rate_limits", parts.Limiter.Sweep),
		janitor.SweepFunc("dedup", parts.Dedup.Sweep),
		janitor.SweepFunc("response_cache", func(time.Time) int { return parts.Cache.Sweep() }),
	).WithInterval(cfg.JanitorInterval).WithSessionGauges(store)
	if ipLimiter != nil {
		j.Add(janitor.SweepFunc("ip_limits", ipLimiter.Sweep))
	}
	if opts.Clock != nil {
		j = j.WithClock(opts.Clock)
	}
	app.Janitor = j

	logger.Info("app assembled", "redis", redisClient != nil, "admin_auth", cfg.AdminJWTSecret != "", "webhook_ip_limit", ipLimiter != nil)
	return app, nil
}

// Close releases backend clients.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
