package janitor

import (
	"context"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

const defaultInterval = time.Hour

// Task is one periodic cleanup job. Sweep returns how many entries it removed.
type Task struct {
	Name  string
	Sweep func(ctx context.Context, now time.Time) (int, error)
}

// Janitor periodically evicts expired soft state.
type Janitor struct {
	tasks    []Task
	store    session.Store
	logger   *logging.Logger
	metrics  *metrics.BotMetrics
	interval time.Duration
	now      func() time.Time
}

func New(logger *logging.Logger, m *metrics.BotMetrics, tasks ...Task) *Janitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Janitor{
		tasks:    tasks,
		logger:   logger,
		metrics:  m,
		interval: defaultInterval,
		now:      time.Now,
	}
}

func (j *Janitor) WithInterval(d time.Duration) *Janitor {
	if d > 0 {
		j.interval = d
	}
	return j
}

func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	if now != nil {
		j.now = now
	}
	return j
}

// WithSessionGauges refreshes the session gauges from store after every pass.
func (j *Janitor) WithSessionGauges(store session.Store) *Janitor {
	j.store = store
	return j
}

// Add registers another task.
func (j *Janitor) Add(t Task) *Janitor {
	j.tasks = append(j.tasks, t)
	return j
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.drain(ctx)
		}
	}
}

// drain runs every task once. A failing task does not stop the others.
func (j *Janitor) drain(ctx context.Context) map[string]int {
	now := j.now()
	evicted := make(map[string]int, len(j.tasks))
	for _, t := range j.tasks {
		if ctx.Err() != nil {
			return evicted
		}
		n, err := t.Sweep(ctx, now)
		if err != nil {
			j.logger.Error("janitor task failed", "task", t.Name, "error", err)
			continue
		}
		evicted[t.Name] = n
		j.metrics.ObserveEvicted(t.Name, n)
		if n > 0 {
			j.logger.Info("janitor evicted entries", "task", t.Name, "count", n)
		}
	}
	if j.store != nil {
		counts, err := j.store.Counts(ctx, now)
		if err != nil {
			j.logger.Warn("session counts failed", "error", err)
		} else {
			j.metrics.SetSessions(counts.Sessions, counts.Support, counts.Blocked)
		}
	}
	return evicted
}
