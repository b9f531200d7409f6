package janitor

import (
	"context"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/session"
)

const (
	defaultSessionTTL = 2 * time.Hour
	defaultSupportTTL = 24 * time.Hour
)

// SessionPolicy decides what happens to an idle session.
type SessionPolicy struct {
	SessionTTL time.Duration
	SupportTTL time.Duration
}

func (p SessionPolicy) withDefaults() SessionPolicy {
	if p.SessionTTL <= 0 {
		p.SessionTTL = defaultSessionTTL
	}
	if p.SupportTTL <= 0 {
		p.SupportTTL = defaultSupportTTL
	}
	return p
}

// Decide evicts sessions idle past their TTL. Sessions under an active block
// are kept; an expired block is cleared in place when the session survives.
func (p SessionPolicy) Decide(s *session.Session, now time.Time) session.SweepAction {
	p = p.withDefaults()
	if s.Blocked(now) {
		return session.SweepKeep
	}
	ttl := p.SessionTTL
	if s.InSupportMode {
		ttl = p.SupportTTL
	}
	if now.Sub(s.LastActivityAt) > ttl {
		return session.SweepEvict
	}
	if s.HasBlock() {
		s.BlockedUntil = time.Time{}
		return session.SweepRewrite
	}
	return session.SweepKeep
}

// SessionTask sweeps store with policy.
func SessionTask(store session.Store, policy SessionPolicy) Task {
	return Task{
		Name: "sessions",
		Sweep: func(ctx context.Context, now time.Time) (int, error) {
			res, err := store.Sweep(ctx, now, policy.Decide)
			return res.Evicted, err
		},
	}
}

// SweepFunc adapts an in-memory sweeper that cannot fail.
func SweepFunc(name string, sweep func(now time.Time) int) Task {
	return Task{
		Name: name,
		Sweep: func(_ context.Context, now time.Time) (int, error) {
			return sweep(now), nil
		},
	}
}
