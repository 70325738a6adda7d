// Package testsupport provides helpers for spinning up ephemeral Docker
// containers for integration testing.
package testsupport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/heimdall-sdk/heimdall/internal/cache"
	"github.com/heimdall-sdk/heimdall/internal/config"
)

// RedisContainer holds references to the ephemeral Redis instance and a
// Store wired up against it.
type RedisContainer struct {
	Container testcontainers.Container
	Store     *cache.RedisStore
}

// Terminate closes the store and tears down the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Store.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a redis:7-alpine container and returns a
// RedisStore already dialed against it.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("testsupport: start redis container: %w", err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("testsupport: get redis endpoint: %w", err)
	}
	host, portStr, _ := strings.Cut(endpoint, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("testsupport: parse redis port %q: %w", portStr, err)
	}

	cfg := config.CacheConfig{Address: fmt.Sprintf("%s:%d", host, port)}
	store, err := cache.NewRedisStore(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("testsupport: build redis store: %w", err)
	}

	return &RedisContainer{Container: redisContainer, Store: store}, nil
}
