package heimdall

import (
	"context"
	"sync"

	"github.com/heimdall-sdk/heimdall/internal/config"
	"github.com/heimdall-sdk/heimdall/internal/registry"
)

// defaultRegistry backs Get/Forget: a process-wide, bounded cache of
// Clients keyed by client key, for applications that don't want to thread
// a *Client through their own dependency injection.
var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *registry.Registry
)

const defaultRegistryCapacity = 16

func registryInstance() *registry.Registry {
	defaultRegistryOnce.Do(func() {
		reg, err := registry.New(defaultRegistryCapacity)
		if err != nil {
			// otter.MustBuilder only fails on invalid capacity, which New
			// already guards against; this is unreachable in practice.
			panic("heimdall: failed to build default registry: " + err.Error())
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Get returns the process-wide Client for cfg.Client.ClientKey, building
// and caching one via New if this is the first call for that key.
func Get(ctx context.Context, cfg *config.Config) (*Client, error) {
	return registry.Get(registryInstance(), cfg.Client.ClientKey, func() (*Client, func(context.Context) error, error) {
		client, err := New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Shutdown, nil
	})
}

// Forget removes and shuts down the cached Client for clientKey, if any.
func Forget(ctx context.Context, clientKey string) error {
	return registryInstance().Delete(ctx, clientKey)
}
