package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heimdall-sdk/heimdall/internal/config"
)

// payloadKeyPrefix namespaces L2 cache keys so a Redis instance can be
// shared with unrelated data without collisions.
const payloadKeyPrefix = "heimdall:payload"

// RedisStore is a Store backed by Redis, for sharing the feature payload
// across multiple SDK instances/processes on the same host.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore dials Redis per cfg, retrying the initial ping with
// exponential backoff so a slow-starting Redis doesn't fail SDK
// construction outright.
func NewRedisStore(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("cache: redis address is not configured")
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	maxRetries := 5
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.Info("cache: connected to redis", "attempt", attempt)
			return &RedisStore{client: client, logger: logger}, nil
		}
		lastErr = err
		logger.Warn("cache: redis ping failed", "attempt", attempt, "error", err)
		if attempt < maxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("cache: failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

func (r *RedisStore) key(clientKey string) string {
	return fmt.Sprintf("%s:%s", payloadKeyPrefix, clientKey)
}

func (r *RedisStore) Get(ctx context.Context, clientKey string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(clientKey)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get %q: %w", clientKey, err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, clientKey string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(clientKey), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %q: %w", clientKey, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// HealthChecker implements observability.Checker for the Redis L2 store.
type HealthChecker struct {
	client *redis.Client
}

// NewHealthChecker builds a checker for store's underlying Redis client.
func NewHealthChecker(store *RedisStore) *HealthChecker {
	return &HealthChecker{client: store.client}
}

func (h *HealthChecker) Name() string { return "redis" }

func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("cache: redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
