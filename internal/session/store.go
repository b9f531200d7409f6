package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for a sender.
var ErrNotFound = errors.New("session: not found")

// SweepAction is a sweep policy's decision for one session.
type SweepAction int

const (
	SweepKeep SweepAction = iota
	// SweepRewrite commits the changes the policy made to the session.
	SweepRewrite
	SweepEvict
)

// SweepFunc inspects a copy of a session during a sweep. It may modify the
// copy and return SweepRewrite to persist the change.
type SweepFunc func(s *Session, now time.Time) SweepAction

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int
	Evicted   int
	Rewritten int
	Skipped   int
}

// Counts are point-in-time gauges over all sessions.
type Counts struct {
	Sessions int
	Support  int
	Blocked  int
}

// Store holds per-sender sessions. Update serializes mutations per sender;
// implementations never hold a sender's lock outside fn.
type Store interface {
	Get(ctx context.Context, sender string) (Session, error)
	Put(ctx context.Context, s Session) error
	// Update runs fn on a copy of the sender's session, creating it lazily.
	// The copy is committed only when fn returns nil.
	Update(ctx context.Context, sender string, fn func(*Session) error) (Session, error)
	Delete(ctx context.Context, sender string) error
	// Sweep applies fn to a snapshot of sessions, skipping any whose sender
	// has a mutation in flight.
	Sweep(ctx context.Context, now time.Time, fn SweepFunc) (SweepResult, error)
	Counts(ctx context.Context, now time.Time) (Counts, error)
}

func tally(c *Counts, s Session, now time.Time) {
	c.Sessions++
	if s.InSupportMode {
		c.Support++
	}
	if s.Blocked(now) {
		c.Blocked++
	}
}
