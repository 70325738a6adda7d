// Package repository implements the long-lived, concurrently accessible
// feature cache: it fetches a JSON feature payload over HTTP, optionally
// AES-CBC-decrypts it, serves it with stale-while-revalidate semantics,
// and notifies subscribers on every successful refresh.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/heimdall-sdk/heimdall/internal/cache"
	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
	"github.com/heimdall-sdk/heimdall/internal/scheduler"
)

// State is the Repository's lifecycle state.
type State int

const (
	// StatePending is the initial state: no features have been served yet.
	StatePending State = iota
	// StateReady means at least one fetch has succeeded.
	StateReady
	// StateError means the initial fetch failed; a later successful fetch
	// still transitions to StateReady.
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// RefreshTrigger identifies why a refresh happened, for logging/metrics.
type RefreshTrigger string

const (
	TriggerInitial   RefreshTrigger = "initial"
	TriggerTimer     RefreshTrigger = "timer"
	TriggerManual    RefreshTrigger = "manual"
	TriggerStaleRead RefreshTrigger = "stale_read"
)

// MetricsRecorder receives optional observability signals. Every method
// must tolerate being called with a nil receiver's zero-value counters;
// implementations should never block.
type MetricsRecorder interface {
	ObserveFetch(outcome string, duration time.Duration)
	IncRefresh(trigger RefreshTrigger)
	SetCacheAge(age time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(string, time.Duration) {}
func (noopMetrics) IncRefresh(RefreshTrigger)          {}
func (noopMetrics) SetCacheAge(time.Duration)          {}

// Repository is the single owner of its mutable state (features,
// lastFetch, state, subscribers); every mutation goes through mu.
type Repository struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	cacheStore cache.Store
	metrics    MetricsRecorder

	mu        sync.RWMutex
	features  map[string]*ruleengine.Feature
	lastFetch time.Time
	state     State
	stateErr  error

	subsMu      sync.Mutex
	subscribers map[string]func(map[string]*ruleengine.Feature)

	readyCh   chan struct{}
	readyOnce sync.Once

	cancel     context.CancelFunc
	background sync.WaitGroup

	refreshing sync.Mutex // serializes concurrent SWR refreshes
}

// New validates cfg and constructs a Repository. It does not start
// background refresh; call Start for that.
func New(cfg Config, logger *slog.Logger, store cache.Store, metrics MetricsRecorder) (*Repository, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Repository{
		cfg:         cfg,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cacheStore:  store,
		metrics:     metrics,
		features:    map[string]*ruleengine.Feature{},
		state:       StatePending,
		subscribers: map[string]func(map[string]*ruleengine.Feature){},
		readyCh:     make(chan struct{}),
	}, nil
}

// Name identifies this Repository as an observability.Checker.
func (r *Repository) Name() string { return "repository" }

// Check implements observability.Checker: unhealthy while the Repository
// is in the error state and has never fetched successfully, healthy
// otherwise.
func (r *Repository) Check(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == StateError && r.lastFetch.IsZero() {
		return fmt.Errorf("repository: never successfully fetched: %w", r.stateErr)
	}
	return nil
}

// Start warms the cache from the optional L2 store, kicks off the initial
// fetch, and — for RefreshPeriodic — schedules the recurring refresh. The
// supplied ctx governs the whole background lifetime; cancel it (or call
// Shutdown) to stop.
func (r *Repository) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.warmFromL2(ctx)

	r.background.Add(1)
	go func() {
		defer r.background.Done()
		r.refresh(ctx, TriggerInitial)
	}()

	if r.cfg.RefreshStrategy == RefreshPeriodic {
		r.background.Add(1)
		go func() {
			defer r.background.Done()
			// scheduler.Run invokes fn immediately on first call; the
			// startup fetch is already covered by the TriggerInitial
			// goroutine above, so skip that first tick here.
			first := true
			_ = scheduler.Run(ctx, r.cfg.swrTTL(), func(ctx context.Context) error {
				if first {
					first = false
					return nil
				}
				r.refresh(ctx, TriggerTimer)
				return nil
			})
		}()
	}
}

func (r *Repository) warmFromL2(ctx context.Context) {
	payload, ok, err := r.cacheStore.Get(ctx, r.cfg.ClientKey)
	if err != nil || !ok {
		return
	}
	features, err := ruleengine.DecodeFeatures(payload, true)
	if err != nil {
		r.logger.Warn("repository: discarding malformed L2 cache entry", "error", err)
		return
	}
	r.mu.Lock()
	r.features = features
	r.mu.Unlock()
	r.logger.Info("repository: warmed features from L2 cache", "client_key", r.cfg.ClientKey, "count", len(features))
}

// AwaitInitialization blocks until the Repository leaves StatePending or
// timeout elapses.
func (r *Repository) AwaitInitialization(timeout time.Duration) error {
	select {
	case <-r.readyCh:
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.state == StateError {
			return r.stateErr
		}
		return nil
	case <-time.After(timeout):
		return ErrInitializationTimeout
	}
}

// GetFeatures returns a snapshot of the current features map. If the
// cache is stale, the stale map is returned immediately and a refresh is
// kicked off in the background (stale-while-revalidate); readers never
// block on network I/O.
func (r *Repository) GetFeatures() map[string]*ruleengine.Feature {
	r.mu.RLock()
	features := r.features
	lastFetch := r.lastFetch
	stale := r.cfg.SWRTTLSeconds > 0 && !r.lastFetch.IsZero() && time.Since(r.lastFetch) > r.cfg.swrTTL()
	r.mu.RUnlock()

	if !lastFetch.IsZero() {
		r.metrics.SetCacheAge(time.Since(lastFetch))
	}

	if stale {
		r.background.Add(1)
		go func() {
			defer r.background.Done()
			r.refresh(context.Background(), TriggerStaleRead)
		}()
	}
	return features
}

// Refresh triggers a synchronous, explicit refresh.
func (r *Repository) Refresh(ctx context.Context) error {
	return r.doRefresh(ctx, TriggerManual)
}

func (r *Repository) refresh(ctx context.Context, trigger RefreshTrigger) {
	if err := r.doRefresh(ctx, trigger); err != nil {
		r.logger.Error("repository: refresh failed, serving stale cache", "trigger", trigger, "error", err)
	}
}

// doRefresh serializes concurrent refreshes (a timer tick and a
// stale-read trigger racing, say) so the origin is never hit twice at
// once for no reason.
func (r *Repository) doRefresh(ctx context.Context, trigger RefreshTrigger) error {
	r.refreshing.Lock()
	defer r.refreshing.Unlock()

	start := time.Now()
	features, raw, err := r.fetchAndDecode(ctx)
	duration := time.Since(start)

	if err != nil {
		r.metrics.ObserveFetch("error", duration)
		r.failInitialFetchIfPending(err)
		return err
	}
	r.metrics.ObserveFetch("success", duration)
	r.metrics.IncRefresh(trigger)

	r.publish(features)

	if raw != nil {
		if werr := r.cacheStore.Set(ctx, r.cfg.ClientKey, raw, r.cfg.swrTTL()*10); werr != nil {
			r.logger.Warn("repository: failed to write through to L2 cache", "error", werr)
		}
	}

	r.notifySubscribers(features)
	return nil
}

func (r *Repository) failInitialFetchIfPending(err error) {
	r.mu.Lock()
	wasPending := r.state == StatePending
	if wasPending {
		r.state = StateError
		r.stateErr = err
	}
	r.mu.Unlock()
	if wasPending {
		r.readyOnce.Do(func() { close(r.readyCh) })
	}
}

func (r *Repository) publish(features map[string]*ruleengine.Feature) {
	r.mu.Lock()
	r.features = features
	r.lastFetch = time.Now()
	wasPending := r.state != StateReady
	r.state = StateReady
	r.stateErr = nil
	r.mu.Unlock()

	r.metrics.SetCacheAge(0)

	if wasPending {
		r.readyOnce.Do(func() { close(r.readyCh) })
	}
}

// notifySubscribers invokes every on_refresh subscriber sequentially,
// after features has already been published, guarding each call so a
// panicking subscriber cannot take down the refresh loop or affect its
// siblings.
func (r *Repository) notifySubscribers(features map[string]*ruleengine.Feature) {
	r.subsMu.Lock()
	subs := make([]func(map[string]*ruleengine.Feature), 0, len(r.subscribers)+1)
	if r.cfg.OnRefresh != nil {
		subs = append(subs, r.cfg.OnRefresh)
	}
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.subsMu.Unlock()

	for _, fn := range subs {
		r.callSubscriber(fn, features)
	}
}

func (r *Repository) callSubscriber(fn func(map[string]*ruleengine.Feature), features map[string]*ruleengine.Feature) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("repository: on_refresh subscriber panicked", "panic", rec)
		}
	}()
	fn(features)
}

// Subscribe registers fn to be called with the new features map after
// every successful refresh. Re-registering the same id replaces it.
func (r *Repository) Subscribe(id string, fn func(map[string]*ruleengine.Feature)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subscribers[id] = fn
}

// Unsubscribe removes a previously registered subscriber.
func (r *Repository) Unsubscribe(id string) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	delete(r.subscribers, id)
}

// Shutdown stops the refresh timer and waits (bounded by ctx) for
// in-flight background work to finish; any callers still blocked in
// AwaitInitialization are released with ErrShutdown.
func (r *Repository) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.failWithShutdownIfPending()

	done := make(chan struct{})
	go func() {
		r.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return r.cacheStore.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repository) failWithShutdownIfPending() {
	r.mu.Lock()
	wasPending := r.state == StatePending
	if wasPending {
		r.state = StateError
		r.stateErr = ErrShutdown
	}
	r.mu.Unlock()
	if wasPending {
		r.readyOnce.Do(func() { close(r.readyCh) })
	}
}

// fetchAndDecode performs one GET, handles the encrypted/unencrypted
// envelope, and returns the decoded feature map along with the raw bytes
// suitable for L2 write-through (always the decrypted/plain feature
// object, never the outer envelope or ciphertext).
func (r *Repository) fetchAndDecode(ctx context.Context) (map[string]*ruleengine.Feature, []byte, error) {
	body, err := r.fetch(ctx)
	if err != nil {
		return nil, nil, err
	}

	var envelope struct {
		Features          json.RawMessage `json:"features"`
		EncryptedFeatures string          `json:"encryptedFeatures"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: decode response body: %v", ErrFetch, err)
	}

	switch {
	case envelope.EncryptedFeatures != "":
		if r.cfg.DecryptionKey == "" {
			return nil, nil, ErrEncryptedWithoutKey
		}
		plaintext, err := decryptPayload(envelope.EncryptedFeatures, r.cfg.DecryptionKey)
		if err != nil {
			return nil, nil, err
		}
		features, err := ruleengine.DecodeFeatures(plaintext, true)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return features, plaintext, nil

	case envelope.Features != nil:
		features, err := ruleengine.DecodeFeatures(envelope.Features, true)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return features, envelope.Features, nil

	default:
		return nil, nil, fmt.Errorf("%w: response has neither \"features\" nor \"encryptedFeatures\"", ErrFetch)
	}
}

func (r *Repository) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.featuresURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}
	return body, nil
}

// State reports the Repository's current lifecycle state and, if in
// StateError, the error that caused it.
func (r *Repository) State() (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.stateErr
}
