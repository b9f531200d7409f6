package conversation

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	defaultCacheCapacity = 100
	defaultCacheEvict    = 20
	minCacheableRunes    = 10
)

// ResponseCache memoizes generated replies keyed by the hash of the normalized
// input. When it grows past capacity the oldest entries are dropped in bulk.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	evict    int
	order    []string
	entries  map[string]string
}

// NewResponseCache returns a cache holding up to capacity replies, dropping the
// evict oldest when exceeded.
func NewResponseCache(capacity, evict int) *ResponseCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if evict <= 0 || evict > capacity {
		evict = defaultCacheEvict
		if evict > capacity {
			evict = capacity
		}
	}
	return &ResponseCache{
		capacity: capacity,
		evict:    evict,
		entries:  make(map[string]string),
	}
}

// CacheKey hashes a normalized message.
func CacheKey(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Cacheable reports whether replies to normalized are worth memoizing: short
// inputs and price questions are always answered fresh.
func Cacheable(normalized string) bool {
	return utf8.RuneCountInString(normalized) > minCacheableRunes && !strings.Contains(normalized, "precio")
}

func (c *ResponseCache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *ResponseCache) Put(key, reply string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = reply
	c.trimLocked()
}

func (c *ResponseCache) trimLocked() int {
	removed := 0
	for len(c.order) > c.capacity {
		n := c.evict
		if n > len(c.order) {
			n = len(c.order)
		}
		for _, k := range c.order[:n] {
			delete(c.entries, k)
		}
		c.order = append([]string(nil), c.order[n:]...)
		removed += n
	}
	return removed
}

// Sweep trims an oversized cache and returns how many entries were dropped.
func (c *ResponseCache) Sweep() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trimLocked()
}

func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.order = nil
	c.entries = make(map[string]string)
	c.mu.Unlock()
}
