package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/multiplay-assistant/internal/guard"
	"github.com/wolfman30/multiplay-assistant/internal/intent"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
)

func TestGeneratorCachesLongAnswers(t *testing.T) {
	calls := 0
	llm := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		calls++
		return LLMResponse{Text: "  la entrega es inmediata  "}, nil
	})
	cache := NewResponseCache(10, 2)
	g := NewGenerator(llm, cache)

	first := g.Reply(context.Background(), "¿Cuánto tarda la entrega?", "¿cuanto tarda la entrega?", nil)
	second := g.Reply(context.Background(), "cuanto tarda la entrega?", "¿cuanto tarda la entrega?", nil)

	assert.Equal(t, "la entrega es inmediata", first.Text)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, calls)
}

func TestGeneratorSkipsCacheForPriceAndShortQuestions(t *testing.T) {
	calls := 0
	llm := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		calls++
		return LLMResponse{Text: fmt.Sprintf("respuesta %d", calls)}, nil
	})
	cache := NewResponseCache(10, 2)
	g := NewGenerator(llm, cache)

	for i := 0; i < 2; i++ {
		g.Reply(context.Background(), "que precio tiene canva", "que precio tiene canva", nil)
		g.Reply(context.Background(), "hola que", "hola que", nil)
	}
	assert.Equal(t, 4, calls)
	assert.Zero(t, cache.Len())
}

func TestGeneratorApologizesOnFailures(t *testing.T) {
	cases := map[string]LLMFunc{
		"error": func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
			return LLMResponse{}, errors.New("boom")
		},
		"empty": func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
			return LLMResponse{Text: "   "}, nil
		},
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			cache := NewResponseCache(10, 2)
			g := NewGenerator(llm, cache, WithApology("lo siento"))
			r := g.Reply(context.Background(), "una pregunta cualquiera", "una pregunta cualquiera", nil)
			assert.True(t, r.Failed)
			assert.Equal(t, "lo siento", r.Text)
			assert.Zero(t, cache.Len())
		})
	}
}

func TestGeneratorTimesOut(t *testing.T) {
	llm := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	})
	g := NewGenerator(llm, nil, WithLLMTimeout(10*time.Millisecond))

	r := g.Reply(context.Background(), "una pregunta cualquiera", "una pregunta cualquiera", nil)
	assert.True(t, r.Failed)
}

func TestGeneratorTrimsContextAndForwardsSampling(t *testing.T) {
	var got LLMRequest
	llm := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		got = req
		return LLMResponse{Text: "ok"}, nil
	})
	g := NewGenerator(llm, nil,
		WithSystemPrompt("base", "", "catalogo"),
		WithModel("gpt-test"),
		WithSampling(0.7, 120),
		WithContextTurns(2),
	)
	prior := []session.Turn{
		{Role: session.RoleUser, Text: "uno"},
		{Role: session.RoleAssistant, Text: "dos"},
		{Role: session.RoleUser, Text: "tres"},
	}

	g.Reply(context.Background(), "cuatro", "cuatro", prior)

	assert.Equal(t, []string{"base", "catalogo"}, got.System)
	assert.Equal(t, "gpt-test", got.Model)
	assert.EqualValues(t, 120, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, ChatMessage{Role: ChatRoleAssistant, Content: "dos"}, got.Messages[0])
	assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "cuatro"}, got.Messages[2])
}

func TestNewGeneratorPanicsWithoutLLM(t *testing.T) {
	assert.Panics(t, func() { NewGenerator(nil, nil) })
}

func TestResponseCacheEvictsOldestInBulk(t *testing.T) {
	c := NewResponseCache(5, 2)
	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	assert.Equal(t, 4, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k5")
	assert.True(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestResponseCacheNilIsSafe(t *testing.T) {
	var c *ResponseCache
	c.Put("k", "v")
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Sweep())
}

func TestCacheKeyIsStable(t *testing.T) {
	assert.Equal(t, CacheKey("hola"), CacheKey("hola"))
	assert.NotEqual(t, CacheKey("hola"), CacheKey("hola!"))
	assert.Len(t, CacheKey("hola"), 32)
}

func TestStatsSnapshot(t *testing.T) {
	start := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	s := NewStats(start)
	s.RecordMessage("a")
	s.RecordMessage("a")
	s.RecordMessage("b")
	s.RecordError()
	for _, p := range []string{"netflix", "hbo", "netflix", "canva", "hbo", "netflix"} {
		s.RecordPlatform(p)
	}

	snap := s.Snapshot()
	assert.Equal(t, start, snap.StartedAt)
	assert.Equal(t, 3, snap.TotalMessages)
	assert.Equal(t, 2, snap.UniqueSenders)
	assert.InDelta(t, 33.33, snap.ErrorRate(), 0.01)
	assert.Equal(t, []PlatformCount{{"netflix", 3}, {"hbo", 2}}, snap.TopPlatforms(2))

	var nilStats *Stats
	nilStats.RecordMessage("x")
	assert.Zero(t, nilStats.Snapshot().TotalMessages)
	assert.Zero(t, StatsSnapshot{}.ErrorRate())
}

func TestDispatcherFallsBackToTextWhenMediaFails(t *testing.T) {
	m := &fakeMessenger{mediaErr: errors.New("media rejected")}
	d := NewDispatcher(m, nil, nil, nil)

	res, err := d.Dispatch(context.Background(), "555", SendMedia("https://img", "caption"), time.Now())

	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.True(t, res.FellBack)
	require.Len(t, m.all(), 1)
	assert.Equal(t, sent{To: "555", Body: "caption"}, m.all()[0])
}

func TestDispatcherReportsDoubleFailure(t *testing.T) {
	m := &fakeMessenger{mediaErr: errors.New("media"), textErr: errors.New("text")}
	d := NewDispatcher(m, nil, nil, nil)

	res, err := d.Dispatch(context.Background(), "555", SendMedia("https://img", "caption"), time.Now())

	require.Error(t, err)
	assert.False(t, res.Delivered)
	assert.Contains(t, err.Error(), "media")
	assert.Contains(t, err.Error(), "text")
}

func TestDispatcherSuppressesDuplicates(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(m, guard.NewDeduplicator(time.Minute), nil, nil)
	now := time.Now()

	first, err := d.Dispatch(context.Background(), "555", SendText("hola"), now)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), "555", SendText("hola"), now.Add(10*time.Second))
	require.NoError(t, err)
	other, err := d.Dispatch(context.Background(), "666", SendText("hola"), now.Add(10*time.Second))
	require.NoError(t, err)

	assert.True(t, first.Delivered)
	assert.True(t, second.Suppressed)
	assert.True(t, other.Delivered)
	assert.Len(t, m.all(), 2)
}

func TestDispatcherNoopAndEmptyText(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(m, nil, nil, nil)

	res, err := d.Dispatch(context.Background(), "555", Noop(), time.Now())
	require.NoError(t, err)
	assert.False(t, res.Delivered)

	_, err = d.Dispatch(context.Background(), "555", SendText("  "), time.Now())
	assert.Error(t, err)
	assert.Empty(t, m.all())
}

func fallbackCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "multiplay_llm_fallback_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestFallbackLLMClient(t *testing.T) {
	failing := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		return LLMResponse{}, errors.New("primary down")
	})
	working := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		return LLMResponse{Text: "from fallback"}, nil
	})
	reg := prometheus.NewRegistry()
	m := metrics.NewBotMetrics(reg)

	resp, err := NewFallbackLLMClient(failing, working, nil, m).Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, 1.0, fallbackCount(t, reg, "recovered"))

	_, err = NewFallbackLLMClient(failing, nil, nil, m).Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "primary down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFallbackLLMClient(failing, working, nil, m).Complete(ctx, LLMRequest{})
	assert.Error(t, err)
	assert.Equal(t, 2.0, fallbackCount(t, reg, "unavailable"))

	_, err = NewFallbackLLMClient(failing, failing, nil, m).Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "primary down")
	assert.Equal(t, 1.0, fallbackCount(t, reg, "failed"))

	ok := LLMFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		return LLMResponse{Text: "primary"}, nil
	})
	resp, err = NewFallbackLLMClient(ok, working, nil, m).Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
	assert.Equal(t, 1.0, fallbackCount(t, reg, "recovered"))
}

type mockChatCompletions struct {
	params openai.ChatCompletionNewParams
	resp   *openai.ChatCompletion
	err    error
}

func (m *mockChatCompletions) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = body
	return m.resp, m.err
}

func TestOpenAILLMClientComplete(t *testing.T) {
	mock := &mockChatCompletions{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Netflix cuesta 13.000  "},
			FinishReason: "stop",
		}},
		Usage: openai.CompletionUsage{PromptTokens: 40, CompletionTokens: 8, TotalTokens: 48},
	}}
	client := newOpenAILLMClient(mock, "gpt-3.5-turbo")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"sistema"},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "hola"},
			{Role: ChatRoleAssistant, Content: "bienvenido"},
			{Role: ChatRoleUser, Content: "precio netflix"},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})

	require.NoError(t, err)
	assert.Equal(t, "Netflix cuesta 13.000", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.EqualValues(t, 48, resp.Usage.TotalTokens)
	assert.Equal(t, openai.ChatModel("gpt-3.5-turbo"), mock.params.Model)
	require.Len(t, mock.params.Messages, 4)
	assert.NotNil(t, mock.params.Messages[0].OfSystem)
	assert.NotNil(t, mock.params.Messages[1].OfUser)
	assert.NotNil(t, mock.params.Messages[2].OfAssistant)
}

func TestOpenAILLMClientErrors(t *testing.T) {
	client := newOpenAILLMClient(&mockChatCompletions{err: errors.New("429")}, "m")
	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "429")

	client = newOpenAILLMClient(&mockChatCompletions{resp: &openai.ChatCompletion{}}, "m")
	_, err = client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	_, err = NewOpenAILLMClient("bad-key", "")
	assert.Error(t, err)
}

func TestRepliesPlatformCardAndCatalogPrompt(t *testing.T) {
	r := DefaultReplies()
	card, err := r.PlatformCard(intent.Platform{DisplayName: "CANVA", Price: "15.000"})
	require.NoError(t, err)
	assert.Contains(t, card, "*CANVA*")
	assert.Contains(t, card, "*$15.000 COP*")

	_, err = NewReplies("{{.Name")
	assert.Error(t, err)

	prompt := CatalogPrompt(intent.DefaultCatalog())
	assert.Contains(t, prompt, "streaming: ")
	assert.Contains(t, prompt, "NETFLIX $13.000")
	assert.Empty(t, CatalogPrompt(nil))
}
