package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultKeyPrefix   = "multiplay:session:"
	defaultRedisTTL    = 24 * time.Hour
	redisLockStripes   = 64
	maxWatchRetries    = 5
	redisScanBatchSize = 100
)

// RedisStore keeps sessions as JSON documents with a TTL. Per-sender
// serialization uses striped local locks plus WATCH on the session key, so a
// janitor sweep never clobbers a concurrent write.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	tracer trace.Tracer
	locks  [redisLockStripes]sync.Mutex
}

// NewRedisStore wraps client. An empty prefix or non-positive ttl use defaults.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		tracer: otel.Tracer("multiplay.internal.session.redis"),
	}
}

var _ Store = (*RedisStore)(nil)

func (r *RedisStore) key(sender string) string {
	return r.prefix + sender
}

func (r *RedisStore) lockFor(sender string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return &r.locks[h.Sum32()%redisLockStripes]
}

func decodeSession(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("session: failed to decode session: %w", err)
	}
	return s, nil
}

// Get loads the sender's session.
func (r *RedisStore) Get(ctx context.Context, sender string) (Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := r.redis.Get(ctx, r.key(sender)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		span.RecordError(err)
		return Session{}, fmt.Errorf("session: failed to load session: %w", err)
	}
	return decodeSession(data)
}

// Put overwrites the sender's session.
func (r *RedisStore) Put(ctx context.Context, s Session) error {
	_, err := r.Update(ctx, s.Sender, func(cur *Session) error {
		*cur = s.Clone()
		return nil
	})
	return err
}

// Update runs fn inside a WATCH transaction on the session key.
func (r *RedisStore) Update(ctx context.Context, sender string, fn func(*Session) error) (Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.update", trace.WithAttributes(attribute.String("session.sender", sender)))
	defer span.End()

	mu := r.lockFor(sender)
	mu.Lock()
	defer mu.Unlock()

	key := r.key(sender)
	var out Session
	txf := func(tx *redis.Tx) error {
		working := Session{Sender: sender}
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("session: failed to load session: %w", err)
		default:
			if working, err = decodeSession(data); err != nil {
				return err
			}
		}
		if err := fn(&working); err != nil {
			return err
		}
		working.Sender = sender
		payload, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("session: failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		out = working
		return nil
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.redis.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		span.RecordError(err)
		return Session{}, err
	}
	err := fmt.Errorf("session: update of %s kept conflicting", sender)
	span.RecordError(err)
	return Session{}, err
}

// Delete removes the sender's session.
func (r *RedisStore) Delete(ctx context.Context, sender string) error {
	mu := r.lockFor(sender)
	mu.Lock()
	defer mu.Unlock()
	if err := r.redis.Del(ctx, r.key(sender)).Err(); err != nil {
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.redis.Scan(ctx, 0, r.prefix+"*", redisScanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: failed to scan sessions: %w", err)
	}
	return keys, nil
}

// Sweep scans the key space once, then decides per key inside a WATCH so a
// session written after the scan is never evicted on stale data.
func (r *RedisStore) Sweep(ctx context.Context, now time.Time, fn SweepFunc) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "session.sweep")
	defer span.End()

	var res SweepResult
	keys, err := r.scanKeys(ctx)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	for _, key := range keys {
		sender := strings.TrimPrefix(key, r.prefix)
		mu := r.lockFor(sender)
		if !mu.TryLock() {
			res.Skipped++
			continue
		}
		action := SweepKeep
		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			s, decodeErr := decodeSession(data)
			if decodeErr != nil {
				// Undecodable documents are dropped.
				action = SweepEvict
			} else {
				action = fn(&s, now)
			}
			var payload []byte
			switch action {
			case SweepKeep:
				return nil
			case SweepRewrite:
				s.Sender = sender
				if payload, err = json.Marshal(s); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if action == SweepEvict {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, payload, redis.KeepTTL)
				}
				return nil
			})
			return err
		}, key)
		mu.Unlock()

		if errors.Is(err, redis.TxFailedErr) {
			res.Skipped++
			continue
		}
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("session: sweep of %s failed: %w", sender, err)
		}
		res.Scanned++
		switch action {
		case SweepEvict:
			res.Evicted++
		case SweepRewrite:
			res.Rewritten++
		}
	}
	span.SetAttributes(attribute.Int("session.evicted", res.Evicted))
	return res, nil
}

// Counts tallies all stored sessions.
func (r *RedisStore) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var c Counts
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return c, err
	}
	for start := 0; start < len(keys); start += redisScanBatchSize {
		end := start + redisScanBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		vals, err := r.redis.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return c, fmt.Errorf("session: failed to load sessions: %w", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			s, err := decodeSession([]byte(raw))
			if err != nil {
				continue
			}
			tally(&c, s, now)
		}
	}
	return c, nil
}
