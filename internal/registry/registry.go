// Package registry provides a process-wide, bounded cache of *heimdall.Client
// instances keyed by client key — a convenience singleton for applications
// that construct clients dynamically (e.g. per-tenant) and want a shared
// instance rather than dependency-injecting one explicitly.
package registry

import (
	"context"
	"fmt"

	"github.com/maypok86/otter"
)

// entry pairs a constructed client with its teardown so Close can release
// background work even though the cache only stores the `any` value.
type entry struct {
	client   any
	shutdown func(context.Context) error
}

// Registry is a bounded cache of client instances, keyed by client key.
// Safe for concurrent use by construction (otter's own synchronization).
type Registry struct {
	store otter.Cache[string, *entry]
}

// New builds a Registry capped at capacity resident clients (16 when
// capacity is not positive; values below 10 are raised to 10, the
// smallest capacity at which the otter cache admits entries). Evicting a
// client from the cache does not shut it down; callers that need
// eviction-triggered teardown should watch for that themselves — this
// registry exists to bound memory for long-lived, rarely-evicted clients,
// not to manage their lifecycle.
func New(capacity int) (*Registry, error) {
	if capacity <= 0 {
		capacity = 16
	}
	if capacity < 10 {
		capacity = 10
	}
	store, err := otter.MustBuilder[string, *entry](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("registry: building cache: %w", err)
	}
	return &Registry{store: store}, nil
}

// Get returns the existing client registered for clientKey, or builds one
// via build and caches it if absent. build is called at most once per
// clientKey unless the entry has been evicted.
func Get[T any](r *Registry, clientKey string, build func() (T, func(context.Context) error, error)) (T, error) {
	if cached, ok := r.store.Get(clientKey); ok {
		if client, ok := cached.client.(T); ok {
			return client, nil
		}
	}

	client, shutdown, err := build()
	if err != nil {
		var zero T
		return zero, err
	}

	r.store.Set(clientKey, &entry{client: client, shutdown: shutdown})
	return client, nil
}

// Delete removes and shuts down the client registered for clientKey, if
// any.
func (r *Registry) Delete(ctx context.Context, clientKey string) error {
	cached, ok := r.store.Get(clientKey)
	if !ok {
		return nil
	}
	r.store.Delete(clientKey)
	if cached.shutdown == nil {
		return nil
	}
	return cached.shutdown(ctx)
}

// Close releases the registry's background cleanup goroutines. It does not
// shut down the clients it holds.
func (r *Registry) Close() {
	r.store.Close()
}
