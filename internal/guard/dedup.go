package guard

import (
	"sync"
	"time"
)

const (
	defaultDedupCooldown = time.Minute
	defaultLastSentTTL   = 2 * time.Hour
)

type lastSent struct {
	text string
	at   time.Time
}

// Deduplicator suppresses identical outbound messages to the same recipient.
// Two guards apply: the exact (sender, text) pair must not have been sent
// within the cool-down, and the previous message to the sender must differ.
type Deduplicator struct {
	mu          sync.Mutex
	cooldown    time.Duration
	lastSentTTL time.Duration
	pairs       map[string]map[string]time.Time
	last        map[string]lastSent
}

// DedupOption customizes a Deduplicator.
type DedupOption func(*Deduplicator)

// WithLastSentTTL bounds how long the previous-message guard remembers a text.
func WithLastSentTTL(ttl time.Duration) DedupOption {
	return func(d *Deduplicator) {
		if ttl > 0 {
			d.lastSentTTL = ttl
		}
	}
}

// NewDeduplicator returns a deduplicator with the given cool-down (default 60s).
func NewDeduplicator(cooldown time.Duration, opts ...DedupOption) *Deduplicator {
	if cooldown <= 0 {
		cooldown = defaultDedupCooldown
	}
	d := &Deduplicator{
		cooldown:    cooldown,
		lastSentTTL: defaultLastSentTTL,
		pairs:       make(map[string]map[string]time.Time),
		last:        make(map[string]lastSent),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldSend reports whether text may be sent to sender at now.
func (d *Deduplicator) ShouldSend(sender, text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allowedLocked(sender, text, now)
}

// Record marks text as sent to sender at now.
func (d *Deduplicator) Record(sender, text string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(sender, text, now)
}

// Claim checks and records in one step so concurrent dispatches of the same
// text cannot both pass.
func (d *Deduplicator) Claim(sender, text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.allowedLocked(sender, text, now) {
		return false
	}
	d.recordLocked(sender, text, now)
	return true
}

func (d *Deduplicator) allowedLocked(sender, text string, now time.Time) bool {
	if at, ok := d.pairs[sender][text]; ok && now.Sub(at) < d.cooldown {
		return false
	}
	if prev, ok := d.last[sender]; ok && prev.text == text && now.Sub(prev.at) < d.lastSentTTL {
		return false
	}
	return true
}

func (d *Deduplicator) recordLocked(sender, text string, now time.Time) {
	byText, ok := d.pairs[sender]
	if !ok {
		byText = make(map[string]time.Time)
		d.pairs[sender] = byText
	}
	byText[text] = now
	d.last[sender] = lastSent{text: text, at: now}
}

// Sweep drops pair records past the cool-down and previous-message records
// past their TTL, returning how many records were removed.
func (d *Deduplicator) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for sender, byText := range d.pairs {
		for text, at := range byText {
			if now.Sub(at) >= d.cooldown {
				delete(byText, text)
				removed++
			}
		}
		if len(byText) == 0 {
			delete(d.pairs, sender)
		}
	}
	for sender, prev := range d.last {
		if now.Sub(prev.at) >= d.lastSentTTL {
			delete(d.last, sender)
			removed++
		}
	}
	return removed
}

// Reset forgets every record.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.pairs = make(map[string]map[string]time.Time)
	d.last = make(map[string]lastSent)
	d.mu.Unlock()
}

// Len reports the number of tracked (sender, text) pairs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, byText := range d.pairs {
		n += len(byText)
	}
	return n
}
