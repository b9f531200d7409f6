package conversation

import (
	"context"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// Fallback outcomes reported to BotMetrics.
const (
	fallbackRecovered   = "recovered"
	fallbackFailed      = "failed"
	fallbackUnavailable = "unavailable"
)

// FallbackLLMClient answers storefront questions from the primary backend and
// retries once on the secondary when the primary errors.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
	metrics   *metrics.BotMetrics
}

// NewFallbackLLMClient chains primary and secondary. A nil secondary makes the
// client a pass-through that still counts primary failures.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger, m *metrics.BotMetrics) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
		metrics:   m,
	}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	// A canceled or expired request has no time left for a second backend.
	if c.secondary == nil || ctx.Err() != nil {
		c.metrics.ObserveFallback(fallbackUnavailable)
		c.logger.Warn("llm primary failed, no fallback attempted",
			"model", req.Model, "turns", len(req.Messages), "error", err)
		return LLMResponse{}, err
	}

	start := time.Now()
	resp, fallbackErr := c.secondary.Complete(ctx, req)
	if fallbackErr != nil {
		c.metrics.ObserveFallback(fallbackFailed)
		c.logger.Error("llm fallback failed",
			"model", req.Model, "primary_error", err, "fallback_error", fallbackErr)
		return LLMResponse{}, fallbackErr
	}
	c.metrics.ObserveFallback(fallbackRecovered)
	c.logger.Info("llm fallback answered",
		"model", req.Model, "primary_error", err, "elapsed_ms", time.Since(start).Milliseconds())
	return resp, nil
}
