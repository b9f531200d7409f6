package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu      sync.Mutex
	sess    Session
	exists  bool
	removed bool
}

// MemoryStore is the process-local Store. Each sender has its own mutex, so
// different senders never contend beyond the map lookup.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) lookup(sender string, create bool) *memoryEntry {
	m.mu.RLock()
	e := m.entries[sender]
	m.mu.RUnlock()
	if e != nil || !create {
		return e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e = m.entries[sender]; e == nil {
		e = &memoryEntry{}
		m.entries[sender] = e
	}
	return e
}

func (m *MemoryStore) unlink(sender string, e *memoryEntry) {
	m.mu.Lock()
	if m.entries[sender] == e {
		delete(m.entries, sender)
	}
	m.mu.Unlock()
}

// Get returns a copy of the sender's session.
func (m *MemoryStore) Get(ctx context.Context, sender string) (Session, error) {
	e := m.lookup(sender, false)
	if e == nil {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists || e.removed {
		return Session{}, ErrNotFound
	}
	return e.sess.Clone(), nil
}

// Put replaces the sender's session.
func (m *MemoryStore) Put(ctx context.Context, s Session) error {
	_, err := m.Update(ctx, s.Sender, func(cur *Session) error {
		*cur = s.Clone()
		return nil
	})
	return err
}

// Update applies fn under the sender's lock.
func (m *MemoryStore) Update(ctx context.Context, sender string, fn func(*Session) error) (Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Session{}, err
		}
		e := m.lookup(sender, true)
		e.mu.Lock()
		if e.removed {
			// Swept or deleted between lookup and lock.
			e.mu.Unlock()
			continue
		}

		working := Session{Sender: sender}
		if e.exists {
			working = e.sess.Clone()
		}
		if err := fn(&working); err != nil {
			discard := !e.exists
			if discard {
				e.removed = true
			}
			e.mu.Unlock()
			if discard {
				m.unlink(sender, e)
			}
			return Session{}, err
		}
		working.Sender = sender
		e.sess = working
		e.exists = true
		out := working.Clone()
		e.mu.Unlock()
		return out, nil
	}
}

// Delete removes the sender's session.
func (m *MemoryStore) Delete(ctx context.Context, sender string) error {
	m.mu.Lock()
	e := m.entries[sender]
	delete(m.entries, sender)
	m.mu.Unlock()
	if e != nil {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) snapshot() map[string]*memoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*memoryEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Sweep walks a snapshot of the map. Entries locked by an in-flight Update
// are skipped and revisited on the next sweep.
func (m *MemoryStore) Sweep(ctx context.Context, now time.Time, fn SweepFunc) (SweepResult, error) {
	var res SweepResult
	for sender, e := range m.snapshot() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !e.mu.TryLock() {
			res.Skipped++
			continue
		}
		if e.removed {
			e.mu.Unlock()
			continue
		}
		res.Scanned++
		action := SweepEvict
		working := e.sess.Clone()
		if e.exists {
			action = fn(&working, now)
		}
		switch action {
		case SweepEvict:
			e.removed = true
			e.mu.Unlock()
			m.unlink(sender, e)
			res.Evicted++
		case SweepRewrite:
			working.Sender = sender
			e.sess = working
			e.mu.Unlock()
			res.Rewritten++
		default:
			e.mu.Unlock()
		}
	}
	return res, nil
}

// Counts tallies sessions, support sessions and active blocks.
func (m *MemoryStore) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var c Counts
	for _, e := range m.snapshot() {
		e.mu.Lock()
		if e.exists && !e.removed {
			tally(&c, e.sess, now)
		}
		e.mu.Unlock()
	}
	return c, nil
}
