package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

const (
	defaultContextTurns = 6
	defaultMaxTokens    = 500
	defaultTemperature  = 0.3
	defaultLLMTimeout   = 30 * time.Second
)

var errEmptyCompletion = errors.New("conversation: empty completion")

// Reply is the generative fallback's answer. Failed replies carry the apology.
type Reply struct {
	Text   string
	Cached bool
	Failed bool
}

// Generator answers free-form messages through an LLM, memoizing common
// questions in a ResponseCache. It never returns an error.
type Generator struct {
	llm          LLMClient
	cache        *ResponseCache
	system       []string
	apology      string
	model        string
	temperature  float32
	maxTokens    int32
	contextTurns int
	timeout      time.Duration
	logger       *logging.Logger
	metrics      *metrics.BotMetrics
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

func WithSystemPrompt(parts ...string) GeneratorOption {
	return func(g *Generator) {
		g.system = nil
		for _, p := range parts {
			if strings.TrimSpace(p) != "" {
				g.system = append(g.system, p)
			}
		}
	}
}

func WithApology(text string) GeneratorOption {
	return func(g *Generator) {
		if text != "" {
			g.apology = text
		}
	}
}

func WithModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

func WithSampling(temperature float64, maxTokens int) GeneratorOption {
	return func(g *Generator) {
		g.temperature = float32(temperature)
		if maxTokens > 0 {
			g.maxTokens = int32(maxTokens)
		}
	}
}

// WithContextTurns caps how many prior history turns are sent to the model.
func WithContextTurns(n int) GeneratorOption {
	return func(g *Generator) {
		if n >= 0 {
			g.contextTurns = n
		}
	}
}

func WithLLMTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithGeneratorLogger(logger *logging.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithGeneratorMetrics(m *metrics.BotMetrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator wraps llm. A nil cache disables memoization.
func NewGenerator(llm LLMClient, cache *ResponseCache, opts ...GeneratorOption) *Generator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	defaults := DefaultReplies()
	g := &Generator{
		llm:          llm,
		cache:        cache,
		system:       []string{defaults.SystemPrompt},
		apology:      defaults.Apology,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
		contextTurns: defaultContextTurns,
		timeout:      defaultLLMTimeout,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reply answers message given the prior history (oldest first, excluding the
// message itself). normalized keys the response cache.
func (g *Generator) Reply(ctx context.Context, message, normalized string, prior []session.Turn) Reply {
	key := CacheKey(normalized)
	if text, ok := g.cache.Get(key); ok {
		g.metrics.ObserveCache(true)
		return Reply{Text: text, Cached: true}
	}
	if g.cache != nil {
		g.metrics.ObserveCache(false)
	}

	if g.contextTurns >= 0 && len(prior) > g.contextTurns {
		prior = prior[len(prior)-g.contextTurns:]
	}
	messages := append(chatMessages(prior), ChatMessage{Role: ChatRoleUser, Content: message})

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.llm.Complete(ctx, LLMRequest{
		Model:       g.model,
		System:      g.system,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		g.metrics.ObserveLLM("error", time.Since(start))
		g.logger.Error("generative reply failed", "error", err, "message", logging.Preview(message, 50))
		return Reply{Text: g.apology, Failed: true}
	}
	g.metrics.ObserveLLM("ok", time.Since(start))

	text := strings.TrimSpace(resp.Text)
	if Cacheable(normalized) {
		g.cache.Put(key, text)
	}
	return Reply{Text: text}
}
