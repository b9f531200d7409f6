package conversation

import (
	"sort"
	"sync"
	"time"
)

// PlatformCount is one row of the platform popularity table.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int    `json:"count"`
}

// StatsSnapshot is a copy of the cumulative counters.
type StatsSnapshot struct {
	StartedAt     time.Time
	TotalMessages int
	UniqueSenders int
	Errors        int
	Platforms     map[string]int
}

// TopPlatforms returns the n most requested platforms, ties ordered by name.
func (s StatsSnapshot) TopPlatforms(n int) []PlatformCount {
	out := make([]PlatformCount, 0, len(s.Platforms))
	for p, c := range s.Platforms {
		out = append(out, PlatformCount{Platform: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Platform < out[j].Platform
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ErrorRate is errors per hundred messages.
func (s StatsSnapshot) ErrorRate() float64 {
	total := s.TotalMessages
	if total < 1 {
		total = 1
	}
	return float64(s.Errors) / float64(total) * 100
}

// Stats tracks cumulative usage counters since process start.
type Stats struct {
	mu        sync.Mutex
	startedAt time.Time
	messages  int
	senders   map[string]struct{}
	errors    int
	platforms map[string]int
}

func NewStats(startedAt time.Time) *Stats {
	return &Stats{
		startedAt: startedAt,
		senders:   make(map[string]struct{}),
		platforms: make(map[string]int),
	}
}

func (s *Stats) RecordMessage(sender string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.messages++
	s.senders[sender] = struct{}{}
	s.mu.Unlock()
}

func (s *Stats) RecordPlatform(platform string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.platforms[platform]++
	s.mu.Unlock()
}

func (s *Stats) RecordError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{Platforms: map[string]int{}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	platforms := make(map[string]int, len(s.platforms))
	for k, v := range s.platforms {
		platforms[k] = v
	}
	return StatsSnapshot{
		StartedAt:     s.startedAt,
		TotalMessages: s.messages,
		UniqueSenders: len(s.senders),
		Errors:        s.errors,
		Platforms:     platforms,
	}
}
