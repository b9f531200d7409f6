package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/conversation"
	"github.com/wolfman30/multiplay-assistant/internal/messaging/compliance"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

type engineState interface {
	Counts(ctx context.Context) (session.Counts, error)
	Stats() conversation.StatsSnapshot
	Now() time.Time
}

type responseCache interface {
	Len() int
	Clear()
}

type resetter interface {
	Reset()
}

type limiterState interface {
	resetter
	Limited() int
}

// StatusConfig wires the status and admin endpoints.
type StatusConfig struct {
	Engine  engineState
	Cache   responseCache
	Dedup   resetter
	Limiter limiterState
	Hours   compliance.BusinessHours
	Version string
	Logger  *logging.Logger
}

// StatusHandler serves /health, /stats, / and the admin cache reset.
type StatusHandler struct {
	engine  engineState
	cache   responseCache
	dedup   resetter
	limiter limiterState
	hours   compliance.BusinessHours
	version string
	logger  *logging.Logger
}

func NewStatusHandler(cfg StatusConfig) *StatusHandler {
	if cfg.Engine == nil {
		panic("handlers: engine state cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &StatusHandler{
		engine:  cfg.Engine,
		cache:   cfg.Cache,
		dedup:   cfg.Dedup,
		limiter: cfg.Limiter,
		hours:   cfg.Hours,
		version: cfg.Version,
		logger:  cfg.Logger,
	}
}

// HealthResponse is the public liveness summary.
type HealthResponse struct {
	Status              string                       `json:"status"`
	Time                string                       `json:"time"`
	UptimeHours         float64                      `json:"uptime_hours"`
	ActiveConversations int                          `json:"active_conversations"`
	ActiveSupport       int                          `json:"active_support"`
	ActiveBlocks        int                          `json:"active_blocks"`
	TotalUsers          int                          `json:"total_users"`
	TotalMessages       int                          `json:"total_messages"`
	Errors              int                          `json:"errors"`
	TopPlatforms        []conversation.PlatformCount `json:"top_platforms"`
	CacheSize           int                          `json:"cache_size"`
	Version             string                       `json:"version"`
}

// StatsResponse is the operator view of usage since start.
type StatsResponse struct {
	Summary   StatsSummary   `json:"summary"`
	Platforms map[string]int `json:"platforms"`
	Current   CurrentState   `json:"current"`
	Version   string         `json:"version"`
}

type StatsSummary struct {
	UptimeDays      int     `json:"uptime_days"`
	UptimeHours     float64 `json:"uptime_hours"`
	UniqueUsers     int     `json:"unique_users"`
	TotalMessages   int     `json:"total_messages"`
	ErrorRate       float64 `json:"error_rate"`
	MessagesPerHour float64 `json:"messages_per_hour"`
}

type CurrentState struct {
	Conversations int `json:"conversations"`
	Support       int `json:"support"`
	Blocked       int `json:"blocked"`
	CacheSize     int `json:"cache_size"`
	RateLimited   int `json:"rate_limited"`
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.Counts(r.Context())
	if err != nil {
		h.logger.Error("health counts failed", "error", err)
		jsonError(w, "session store unavailable", http.StatusInternalServerError)
		return
	}
	now := h.engine.Now()
	snap := h.engine.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:              "ok",
		Time:                h.hours.Local(now).Format(time.RFC3339),
		UptimeHours:         round2(now.Sub(snap.StartedAt).Hours()),
		ActiveConversations: counts.Sessions,
		ActiveSupport:       counts.Support,
		ActiveBlocks:        counts.Blocked,
		TotalUsers:          snap.UniqueSenders,
		TotalMessages:       snap.TotalMessages,
		Errors:              snap.Errors,
		TopPlatforms:        snap.TopPlatforms(5),
		CacheSize:           h.cacheLen(),
		Version:             h.version,
	})
}

func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.Counts(r.Context())
	if err != nil {
		h.logger.Error("stats counts failed", "error", err)
		jsonError(w, "session store unavailable", http.StatusInternalServerError)
		return
	}
	snap := h.engine.Stats()
	uptime := h.engine.Now().Sub(snap.StartedAt)
	rateLimited := 0
	if h.limiter != nil {
		rateLimited = h.limiter.Limited()
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Summary: StatsSummary{
			UptimeDays:      int(uptime.Hours() / 24),
			UptimeHours:     round2(uptime.Hours()),
			UniqueUsers:     snap.UniqueSenders,
			TotalMessages:   snap.TotalMessages,
			ErrorRate:       round2(snap.ErrorRate()),
			MessagesPerHour: round2(float64(snap.TotalMessages) / math.Max(uptime.Hours(), 1)),
		},
		Platforms: snap.Platforms,
		Current: CurrentState{
			Conversations: counts.Sessions,
			Support:       counts.Support,
			Blocked:       counts.Blocked,
			CacheSize:     h.cacheLen(),
			RateLimited:   rateLimited,
		},
		Version: h.version,
	})
}

// ClearCache drops memoized replies and the dedup and rate-limit state.
// Sessions are kept.
func (h *StatusHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		h.cache.Clear()
	}
	if h.dedup != nil {
		h.dedup.Reset()
	}
	if h.limiter != nil {
		h.limiter.Reset()
	}
	h.logger.Info("caches cleared")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cache_cleared",
		"message": "response cache, dedup and rate-limit state cleared",
	})
}

func (h *StatusHandler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<html>
<head><title>MULTIPLAY MULTIMARCA Bot</title></head>
<body>
    <h2>✅ MULTIPLAY MULTIMARCA Bot en ejecución</h2>
    <p>Status: Activo</p>
    <p>Versión: ` + h.version + `</p>
    <a href="/health">Ver Estado del Sistema</a>
</body>
</html>`))
}

func (h *StatusHandler) cacheLen() int {
	if h.cache == nil {
		return 0
	}
	return h.cache.Len()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
