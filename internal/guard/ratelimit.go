package guard

import (
	"sync"
	"time"
)

const (
	defaultRateLimit  = 10
	defaultRateWindow = time.Minute
)

// Rejection reasons reported in Verdict.Reason.
const (
	ReasonSpacing     = "spacing"
	ReasonRateLimited = "rate_limited"
)

// Verdict is the outcome of RateLimiter.Admit.
type Verdict struct {
	Allowed bool
	// Warn is set on the first rate-limited rejection since the sender was
	// last admitted; callers send a single notice instead of one per message.
	Warn   bool
	Reason string
}

type senderWindow struct {
	stamps       []time.Time
	lastAdmitted time.Time
	warned       bool
}

// RateLimiter enforces a per-sender sliding window plus an optional minimum
// spacing between admitted messages. Safe for concurrent use.
type RateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	minSpacing time.Duration
	senders    map[string]*senderWindow
}

// NewRateLimiter allows at most limit messages per sender within window.
// Non-positive limit or window fall back to 10 per minute; minSpacing of 0
// disables the spacing check.
func NewRateLimiter(limit int, window, minSpacing time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	if minSpacing < 0 {
		minSpacing = 0
	}
	return &RateLimiter{
		limit:      limit,
		window:     window,
		minSpacing: minSpacing,
		senders:    make(map[string]*senderWindow),
	}
}

// Admit decides whether a message from sender arriving at now is processed.
// Only admitted messages are recorded in the window.
func (r *RateLimiter) Admit(sender string, now time.Time) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.senders[sender]
	if !ok {
		w = &senderWindow{}
		r.senders[sender] = w
	}

	if r.minSpacing > 0 && !w.lastAdmitted.IsZero() && now.Sub(w.lastAdmitted) < r.minSpacing {
		return Verdict{Reason: ReasonSpacing}
	}

	w.stamps = prune(w.stamps, now, r.window)
	if len(w.stamps) >= r.limit {
		warn := !w.warned
		w.warned = true
		return Verdict{Reason: ReasonRateLimited, Warn: warn}
	}

	w.stamps = append(w.stamps, now)
	w.lastAdmitted = now
	w.warned = false
	return Verdict{Allowed: true}
}

// Limited reports how many senders are currently flagged as rate limited.
func (r *RateLimiter) Limited() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.senders {
		if w.warned {
			n++
		}
	}
	return n
}

// Sweep forgets senders whose newest activity is older than the window and
// returns how many were dropped.
func (r *RateLimiter) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for sender, w := range r.senders {
		w.stamps = prune(w.stamps, now, r.window)
		if len(w.stamps) == 0 && now.Sub(w.lastAdmitted) >= r.window {
			delete(r.senders, sender)
			removed++
		}
	}
	return removed
}

// Reset clears all windows and warning flags.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.senders = make(map[string]*senderWindow)
	r.mu.Unlock()
}

// prune keeps timestamps strictly younger than window, reusing the backing array.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	valid := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) < window {
			valid = append(valid, t)
		}
	}
	return valid
}
