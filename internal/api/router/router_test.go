package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/multiplay-assistant/internal/conversation"
	"github.com/wolfman30/multiplay-assistant/internal/guard"
	"github.com/wolfman30/multiplay-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/multiplay-assistant/internal/http/middleware"
	"github.com/wolfman30/multiplay-assistant/internal/intent"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return nil
}

func (m *recordingMessenger) SendMedia(_ context.Context, to, mediaURL, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mediaURL)
	return nil
}

func newTestRouter(t *testing.T, secret string) (http.Handler, *recordingMessenger) {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewBotMetrics(reg)
	messenger := &recordingMessenger{}
	cache := conversation.NewResponseCache(100, 20)
	dedup := guard.NewDeduplicator(time.Minute)
	limiter := guard.NewRateLimiter(10, time.Minute, 0)
	llm := conversation.LLMFunc(func(ctx context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
		return conversation.LLMResponse{Text: "ok"}, nil
	})
	engine := conversation.NewEngine(
		session.NewMemoryStore(),
		intent.NewClassifier(nil, nil),
		limiter,
		conversation.NewGenerator(llm, cache),
		conversation.NewDispatcher(messenger, dedup, logger, m),
		conversation.WithStats(conversation.NewStats(time.Now())),
		conversation.WithMetrics(m),
	)

	return New(&Config{
		Logger:  logger,
		Webhook: handlers.NewWebhookHandler(engine, logger),
		Status: handlers.NewStatusHandler(handlers.StatusConfig{
			Engine:  engine,
			Cache:   cache,
			Dedup:   dedup,
			Limiter: limiter,
			Version: "2.0",
		}),
		WebhookLimiter:  httpmiddleware.NewIPRateLimiter(100, 100),
		AdminAuthSecret: secret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}), messenger
}

func TestRouterWebhookEndToEnd(t *testing.T) {
	router, messenger := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"data":{"from":"573001234567@c.us","body":"netflix"}}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "platform_sent" || resp["platform"] != "netflix" {
		t.Fatalf("unexpected response %v", resp)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected one outbound send, got %d", len(messenger.sent))
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var health handlers.HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "ok" || health.Version != "2.0" {
		t.Errorf("unexpected health %+v", health)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"data":{"from":"573001234567","body":"soporte"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), req)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `multiplay_bot_inbound_messages_total{status="support_enabled"} 1`) {
		t.Fatalf("expected inbound counter in metrics output")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRouterAdminRequiresTokenWhenConfigured(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/stats"},
		{http.MethodPost, "/admin/clear-cache"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: expected status %d, got %d", tc.method, tc.path, http.StatusOK, rr.Code)
		}
	}
}

func TestRouterAdminOpenWithoutSecret(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

type panickingEngine struct{}

func (panickingEngine) Handle(context.Context, conversation.Inbound) (conversation.Outcome, error) {
	panic("boom")
}

func TestRouterRecoversWebhookPanicWithJSONError(t *testing.T) {
	logger := logging.Default()
	router := New(&Config{
		Logger:  logger,
		Webhook: handlers.NewWebhookHandler(panickingEngine{}, logger),
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"data":{"from":"5551234567","body":"hola"}}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "error" || resp["message"] != "internal error" {
		t.Fatalf("unexpected body %v", resp)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header on recovered response")
	}
}
