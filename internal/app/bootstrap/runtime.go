package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/diagnostico-bot/internal/config"
	"github.com/wolfman30/diagnostico-bot/internal/payments"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
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
		logger.Warn("redis not available", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session backend. SESSION_BACKEND=redis needs a
// reachable client; otherwise sessions live in process memory.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) session.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && cfg.SessionBackend == "redis" {
		if redisClient != nil {
			logger.Info("session store: redis", "ttl", cfg.SessionTTL)
			return session.NewRedisStore(redisClient, cfg.SessionTTL)
		}
		logger.Warn("session store: redis requested but unavailable, falling back to memory")
	}
	logger.Info("session store: memory")
	return session.NewMemoryStore()
}

// BuildProcessedTracker dedupes payment webhooks in Redis when it is available.
func BuildProcessedTracker(redisClient *redis.Client) payments.ProcessedTracker {
	if redisClient == nil {
		return payments.NewMemoryProcessedTracker()
	}
	return payments.NewRedisProcessedTracker(redisClient)
}
