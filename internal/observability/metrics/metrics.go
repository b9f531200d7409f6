package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BotMetrics exposes counters/histograms for the chat engine and its collaborators.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	intentTotal     *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	platformTotal   *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	handleLatency   prometheus.Histogram
	janitorEvicted  *prometheus.CounterVec
	activeSessions  *prometheus.GaugeVec
	responseCacheOp *prometheus.CounterVec
	llmFallback     *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "bot",
			Name:      "inbound_messages_total",
			Help:      "Inbound webhook messages by resulting status",
		}, []string{"status"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "bot",
			Name:      "intents_total",
			Help:      "Classified intents",
		}, []string{"intent"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "gateway",
			Name:      "outbound_total",
			Help:      "Outbound gateway sends",
		}, []string{"kind", "status"}),
		platformTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "bot",
			Name:      "platform_lookups_total",
			Help:      "Platform cards requested",
		}, []string{"platform"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multiplay",
			Subsystem: "llm",
			Name:      "completion_seconds",
			Help:      "Latency of generative fallback calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		handleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "multiplay",
			Subsystem: "bot",
			Name:      "handle_seconds",
			Help:      "Latency of inbound message handling",
			Buckets:   prometheus.DefBuckets,
		}),
		janitorEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "janitor",
			Name:      "evicted_total",
			Help:      "Records evicted by the janitor",
		}, []string{"task"}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "multiplay",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions observed at the last janitor pass",
		}, []string{"state"}),
		responseCacheOp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "llm",
			Name:      "response_cache_total",
			Help:      "Response cache lookups",
		}, []string{"result"}),
		llmFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiplay",
			Subsystem: "llm",
			Name:      "fallback_total",
			Help:      "Primary backend failures by what the secondary backend did",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.intentTotal, m.outboundTotal, m.platformTotal,
		m.llmLatency, m.handleLatency, m.janitorEvicted, m.activeSessions, m.responseCacheOp, m.llmFallback)
	return m
}

func (m *BotMetrics) ObserveInbound(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
	m.handleLatency.Observe(elapsed.Seconds())
}

func (m *BotMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentTotal.WithLabelValues(intent).Inc()
}

// ObserveOutbound records a gateway send; status is sent, failed, fallback or suppressed.
func (m *BotMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObservePlatform(platform string) {
	if m == nil {
		return
	}
	m.platformTotal.WithLabelValues(platform).Inc()
}

func (m *BotMetrics) ObserveLLM(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *BotMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.responseCacheOp.WithLabelValues(result).Inc()
}

// ObserveFallback records a primary backend failure; result is recovered,
// failed or unavailable.
func (m *BotMetrics) ObserveFallback(result string) {
	if m == nil {
		return
	}
	m.llmFallback.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObserveEvicted(task string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.janitorEvicted.WithLabelValues(task).Add(float64(n))
}

func (m *BotMetrics) SetSessions(total, support, blocked int) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues("total").Set(float64(total))
	m.activeSessions.WithLabelValues("support").Set(float64(support))
	m.activeSessions.WithLabelValues("blocked").Set(float64(blocked))
}
