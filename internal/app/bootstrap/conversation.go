package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	appconfig "github.com/wolfman30/multiplay-assistant/internal/config"
	"github.com/wolfman30/multiplay-assistant/internal/conversation"
	"github.com/wolfman30/multiplay-assistant/internal/guard"
	"github.com/wolfman30/multiplay-assistant/internal/intent"
	"github.com/wolfman30/multiplay-assistant/internal/messaging/compliance"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// BuildLLMClient wires OpenAI as the primary backend, with Gemini behind it
// when a key is configured. The returned closer releases the Gemini client.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.BotMetrics) (conversation.LLMClient, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		return nil, noop, fmt.Errorf("bootstrap: openai client: %w", err)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		logger.Info("llm backend: openai", "model", cfg.OpenAIModel)
		return conversation.NewFallbackLLMClient(primary, nil, logger, m), noop, nil
	}

	secondary, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Warn("gemini fallback disabled", "error", err)
		return conversation.NewFallbackLLMClient(primary, nil, logger, m), noop, nil
	}
	logger.Info("llm backend: openai with gemini fallback", "model", cfg.OpenAIModel, "fallback_model", cfg.GeminiModel)
	return conversation.NewFallbackLLMClient(primary, secondary, logger, m), secondary.Close, nil
}

// BuildBusinessHours parses the configured service window.
func BuildBusinessHours(cfg *appconfig.Config) (compliance.BusinessHours, error) {
	if cfg == nil {
		return compliance.BusinessHours{}, fmt.Errorf("bootstrap: config is required")
	}
	hours, err := compliance.ParseBusinessHours(cfg.BusinessHoursOpen, cfg.BusinessHoursClose, cfg.BusinessHoursTimezone, cfg.BusinessHoursUTCOffset)
	if err != nil {
		return compliance.BusinessHours{}, fmt.Errorf("bootstrap: business hours: %w", err)
	}
	return hours, nil
}

// EngineDeps are the collaborators the engine is assembled from.
type EngineDeps struct {
	Store     session.Store
	LLM       conversation.LLMClient
	Messenger conversation.Messenger
	Hours     compliance.BusinessHours
	Metrics   *metrics.BotMetrics
	Clock     func() time.Time
}

// EngineParts exposes the shared state the HTTP layer and janitor need.
type EngineParts struct {
	Engine  *conversation.Engine
	Cache   *conversation.ResponseCache
	Dedup   *guard.Deduplicator
	Limiter *guard.RateLimiter
}

// BuildEngine assembles the classifier, guards, generator and dispatcher.
func BuildEngine(cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) (*EngineParts, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Store == nil || deps.LLM == nil || deps.Messenger == nil {
		return nil, fmt.Errorf("bootstrap: store, llm and messenger are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	catalog := intent.DefaultCatalog()
	classifier := intent.NewClassifier(intent.DefaultRules(), catalog)
	replies := conversation.DefaultReplies()

	cache := conversation.NewResponseCache(cfg.ResponseCacheSize, cfg.ResponseCacheEvict)
	dedup := guard.NewDeduplicator(cfg.DedupCooldown, guard.WithLastSentTTL(cfg.DedupLastSentTTL))
	limiter := guard.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.MinMessageSpacing)

	generator := conversation.NewGenerator(deps.LLM, cache,
		conversation.WithSystemPrompt(replies.SystemPrompt, conversation.CatalogPrompt(catalog)),
		conversation.WithApology(replies.Apology),
		conversation.WithModel(cfg.OpenAIModel),
		conversation.WithSampling(cfg.LLMTemperature, cfg.LLMMaxTokens),
		conversation.WithContextTurns(cfg.LLMContextSize),
		conversation.WithGeneratorLogger(logger),
		conversation.WithGeneratorMetrics(deps.Metrics),
	)
	dispatcher := conversation.NewDispatcher(deps.Messenger, dedup, logger, deps.Metrics)

	engineCfg := conversation.DefaultEngineConfig()
	engineCfg.WelcomeInterval = cfg.WelcomeInterval
	engineCfg.OutOfHoursNoticeInterval = cfg.OutOfHoursNoticeInterval
	engineCfg.AttachmentBlock = cfg.AttachmentBlockDuration
	engineCfg.HistoryMaxTurns = cfg.HistoryMaxTurns
	engineCfg.HistoryKeepTurns = cfg.HistoryKeepTurns
	engineCfg.ContextTurns = cfg.LLMContextSize

	engine := conversation.NewEngine(deps.Store, classifier, limiter, generator, dispatcher,
		conversation.WithBusinessHours(deps.Hours),
		conversation.WithReplies(replies),
		conversation.WithStats(conversation.NewStats(clock())),
		conversation.WithEngineConfig(engineCfg),
		conversation.WithClock(clock),
		conversation.WithLogger(logger),
		conversation.WithMetrics(deps.Metrics),
	)
	return &EngineParts{Engine: engine, Cache: cache, Dedup: dedup, Limiter: limiter}, nil
}
