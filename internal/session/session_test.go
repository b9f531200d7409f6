package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

// storeFactories runs the shared contract against both backends.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			client, _, cleanup := setupTestRedis(t)
			t.Cleanup(cleanup)
			return NewRedisStore(client, "test:session:", time.Hour)
		},
	}
}

func TestSessionAppendTurnTruncates(t *testing.T) {
	var s Session
	for i := 0; i < 20; i++ {
		s.AppendTurn(RoleUser, fmt.Sprintf("m%d", i), 20, 10)
	}
	assert.Len(t, s.History, 20)

	s.AppendTurn(RoleAssistant, "m20", 20, 10)
	require.Len(t, s.History, 10)
	assert.Equal(t, "m11", s.History[0].Text)
	assert.Equal(t, "m20", s.History[9].Text)

	tail := s.Tail(6)
	require.Len(t, tail, 6)
	assert.Equal(t, "m15", tail[0].Text)
	assert.Len(t, s.Tail(50), 10)
	assert.Nil(t, s.Tail(0))
}

func TestSessionBlocked(t *testing.T) {
	s := Session{}
	assert.False(t, s.Blocked(t0))
	s.BlockedUntil = t0.Add(time.Hour)
	assert.True(t, s.Blocked(t0))
	assert.True(t, s.Blocked(t0.Add(59*time.Minute)))
	assert.False(t, s.Blocked(t0.Add(time.Hour)))
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := Session{History: []Turn{{Role: RoleUser, Text: "a"}}}
	c := s.Clone()
	c.History[0].Text = "b"
	assert.Equal(t, "a", s.History[0].Text)
}

func TestStoreContract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory()

			_, err := store.Get(ctx, "5551234567")
			assert.ErrorIs(t, err, ErrNotFound)

			s, err := store.Update(ctx, "5551234567", func(s *Session) error {
				s.InSupportMode = true
				s.LastActivityAt = t0
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, "5551234567", s.Sender)

			got, err := store.Get(ctx, "5551234567")
			require.NoError(t, err)
			assert.True(t, got.InSupportMode)
			assert.True(t, got.LastActivityAt.Equal(t0))

			boom := errors.New("boom")
			_, err = store.Update(ctx, "5551234567", func(s *Session) error {
				s.InSupportMode = false
				return boom
			})
			assert.ErrorIs(t, err, boom)
			got, err = store.Get(ctx, "5551234567")
			require.NoError(t, err)
			assert.True(t, got.InSupportMode, "failed update must not commit")

			_, err = store.Update(ctx, "new-sender", func(s *Session) error { return boom })
			assert.ErrorIs(t, err, boom)
			_, err = store.Get(ctx, "new-sender")
			assert.ErrorIs(t, err, ErrNotFound, "failed create leaves nothing behind")

			require.NoError(t, store.Put(ctx, Session{Sender: "other", BlockedUntil: t0.Add(time.Hour)}))
			counts, err := store.Counts(ctx, t0)
			require.NoError(t, err)
			assert.Equal(t, Counts{Sessions: 2, Support: 1, Blocked: 1}, counts)

			require.NoError(t, store.Delete(ctx, "other"))
			_, err = store.Get(ctx, "other")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSweep(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory()
			require.NoError(t, store.Put(ctx, Session{Sender: "idle", LastActivityAt: t0.Add(-3 * time.Hour)}))
			require.NoError(t, store.Put(ctx, Session{Sender: "active", LastActivityAt: t0}))
			require.NoError(t, store.Put(ctx, Session{Sender: "expired-block", LastActivityAt: t0, BlockedUntil: t0.Add(-time.Minute)}))

			res, err := store.Sweep(ctx, t0, func(s *Session, now time.Time) SweepAction {
				if s.HasBlock() && !s.Blocked(now) {
					s.BlockedUntil = time.Time{}
					return SweepRewrite
				}
				if now.Sub(s.LastActivityAt) > 2*time.Hour {
					return SweepEvict
				}
				return SweepKeep
			})
			require.NoError(t, err)
			assert.Equal(t, 3, res.Scanned)
			assert.Equal(t, 1, res.Evicted)
			assert.Equal(t, 1, res.Rewritten)

			_, err = store.Get(ctx, "idle")
			assert.ErrorIs(t, err, ErrNotFound)
			got, err := store.Get(ctx, "expired-block")
			require.NoError(t, err)
			assert.False(t, got.HasBlock())
		})
	}
}

func TestMemoryStoreSweepSkipsInFlightUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Session{Sender: "busy", LastActivityAt: t0.Add(-5 * time.Hour)}))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := store.Update(ctx, "busy", func(s *Session) error {
			close(entered)
			<-release
			s.LastActivityAt = t0
			return nil
		})
		assert.NoError(t, err)
	}()
	<-entered

	res, err := store.Sweep(ctx, t0, func(*Session, time.Time) SweepAction { return SweepEvict })
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Evicted)

	close(release)
	<-done
	got, err := store.Get(ctx, "busy")
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(t0))
}

func TestMemoryStoreSerializesPerSender(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "same", func(s *Session) error {
				s.AppendTurn(RoleUser, "x", 0, 0)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, err := store.Get(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, got.History, 100, "no lost updates")
}

func TestMemoryStoreUpdateAfterDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Session{Sender: "s", InSupportMode: true}))
	require.NoError(t, store.Delete(ctx, "s"))

	s, err := store.Update(ctx, "s", func(s *Session) error { return nil })
	require.NoError(t, err)
	assert.False(t, s.InSupportMode, "deleted state is not resurrected")
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewRedisStore(client, "", 30*time.Minute)
	require.NoError(t, store.Put(ctx, Session{Sender: "5551234567"}))
	assert.Equal(t, 30*time.Minute, mr.TTL(defaultKeyPrefix+"5551234567"))

	mr.FastForward(31 * time.Minute)
	_, err := store.Get(ctx, "5551234567")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSweepDropsCorruptDocuments(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, mr.Set("test:session:broken", "{not json"))

	store := NewRedisStore(client, "test:session:", time.Hour)
	res, err := store.Sweep(ctx, t0, func(*Session, time.Time) SweepAction { return SweepKeep })
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evicted)
	assert.False(t, mr.Exists("test:session:broken"))
}

func TestNewRedisStorePanicsWithoutClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisStore(nil, "", 0) })
}
