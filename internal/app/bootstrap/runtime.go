package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/multiplay-assistant/internal/config"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the Redis-backed store when a client is available
// and falls back to process memory otherwise.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) session.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil || cfg == nil {
		logger.Info("session store: memory")
		return session.NewMemoryStore()
	}
	// Keys outlive the longest janitor TTL so the sweep, not Redis, decides eviction.
	ttl := cfg.SupportSessionTTL
	if cfg.SessionTTL > ttl {
		ttl = cfg.SessionTTL
	}
	logger.Info("session store: redis", "prefix", cfg.RedisKeyPrefix)
	return session.NewRedisStore(redisClient, cfg.RedisKeyPrefix, 2*ttl)
}
