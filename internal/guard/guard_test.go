package guard

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func TestRateLimiterRejectsAfterThreshold(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute, 0)
	for i := 0; i < 10; i++ {
		v := rl.Admit("5551234567", base.Add(time.Duration(i)*time.Second))
		require.True(t, v.Allowed, "message %d should be admitted", i+1)
	}

	v := rl.Admit("5551234567", base.Add(10*time.Second))
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonRateLimited, v.Reason)
	assert.True(t, v.Warn, "first rejection warns")

	v = rl.Admit("5551234567", base.Add(11*time.Second))
	assert.False(t, v.Allowed)
	assert.False(t, v.Warn, "later rejections stay silent")
	assert.Equal(t, 1, rl.Limited())
}

func TestRateLimiterAdmitsAfterWindowElapses(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute, 0)
	for i := 0; i < 10; i++ {
		rl.Admit("s", base)
	}
	assert.False(t, rl.Admit("s", base.Add(59*time.Second)).Allowed)

	v := rl.Admit("s", base.Add(time.Minute))
	assert.True(t, v.Allowed)
	assert.Equal(t, 0, rl.Limited(), "warned flag clears once admitted")

	// A fresh crossing warns again.
	for i := 0; i < 9; i++ {
		rl.Admit("s", base.Add(time.Minute))
	}
	assert.True(t, rl.Admit("s", base.Add(time.Minute+time.Second)).Warn)
}

func TestRateLimiterSpacingRunsFirst(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, 3*time.Second)
	assert.True(t, rl.Admit("s", base).Allowed)

	v := rl.Admit("s", base.Add(time.Second))
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonSpacing, v.Reason)
	assert.False(t, v.Warn)

	assert.True(t, rl.Admit("s", base.Add(3*time.Second)).Allowed)

	v = rl.Admit("s", base.Add(4*time.Second))
	assert.Equal(t, ReasonSpacing, v.Reason, "spacing is checked before the window")

	v = rl.Admit("s", base.Add(7*time.Second))
	assert.Equal(t, ReasonRateLimited, v.Reason)
	assert.True(t, v.Warn)
}

func TestRateLimiterSendersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 0)
	assert.True(t, rl.Admit("a", base).Allowed)
	assert.False(t, rl.Admit("a", base).Allowed)
	assert.True(t, rl.Admit("b", base).Allowed)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, 0)
	rl.Admit("old", base)
	rl.Admit("fresh", base.Add(50*time.Second))

	removed := rl.Sweep(base.Add(70 * time.Second))
	assert.Equal(t, 1, removed)

	rl.Reset()
	assert.Equal(t, 0, rl.Sweep(base.Add(time.Hour)))
}

func TestRateLimiterConcurrentAdmit(t *testing.T) {
	rl := NewRateLimiter(50, time.Minute, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Admit("s", base).Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}

func TestIsSpamContent(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"a", true},
		{"   ", true},
		{"ok", false},
		{"aaaaaa", true},
		{"aaaaa", false},
		{"ñññññññ", true},
		{"mira https://promo.example.com/x", true},
		{"http://x.co", true},
		{"hola, quiero netflix", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSpamContent(tt.text), "text %q", tt.text)
	}
}

func TestDeduplicatorCooldown(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	require.True(t, d.ShouldSend("s", "hola", base))
	d.Record("s", "hola", base)

	assert.False(t, d.ShouldSend("s", "hola", base.Add(30*time.Second)))
	assert.True(t, d.ShouldSend("other", "hola", base.Add(30*time.Second)))

	d.Record("s", "otro", base.Add(40*time.Second))
	assert.False(t, d.ShouldSend("s", "hola", base.Add(50*time.Second)), "pair still cooling down")
	assert.True(t, d.ShouldSend("s", "hola", base.Add(61*time.Second)))
}

func TestDeduplicatorLastSentGuard(t *testing.T) {
	d := NewDeduplicator(time.Minute, WithLastSentTTL(time.Hour))
	d.Record("s", "bienvenida", base)

	assert.False(t, d.ShouldSend("s", "bienvenida", base.Add(10*time.Minute)), "verbatim repeat of previous message")

	d.Record("s", "otra cosa", base.Add(11*time.Minute))
	assert.True(t, d.ShouldSend("s", "bienvenida", base.Add(12*time.Minute)))

	d.Record("s", "eco", base.Add(13*time.Minute))
	assert.True(t, d.ShouldSend("s", "eco", base.Add(13*time.Minute+time.Hour)), "previous-message guard expires")
}

func TestDeduplicatorClaimSingleWinner(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Claim("s", "mismo texto", base) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestDeduplicatorSweepAndReset(t *testing.T) {
	d := NewDeduplicator(time.Minute, WithLastSentTTL(10*time.Minute))
	d.Record("s", "a", base)
	d.Record("s", "b", base.Add(5*time.Minute))
	assert.Equal(t, 2, d.Len())

	removed := d.Sweep(base.Add(5*time.Minute + 30*time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, d.Len())

	removed = d.Sweep(base.Add(20 * time.Minute))
	assert.Equal(t, 2, removed, "pair and previous-message record")

	d.Record("s", strings.Repeat("x", 3), base)
	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.ShouldSend("s", "xxx", base))
}
