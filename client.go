// Package heimdall is a client-side feature-flag and A/B-testing SDK
// compatible with the GrowthBook feature payload format. A Client owns a
// long-lived Repository that keeps the feature set warm in the
// background; evaluation (Feature, Run) never blocks on network I/O.
package heimdall

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdall-sdk/heimdall/internal/cache"
	"github.com/heimdall-sdk/heimdall/internal/config"
	"github.com/heimdall-sdk/heimdall/internal/logger"
	"github.com/heimdall-sdk/heimdall/internal/observability"
	"github.com/heimdall-sdk/heimdall/internal/repository"
	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
	"github.com/heimdall-sdk/heimdall/internal/validation"
)

// Client is the public entry point: one Client per client key, wrapping
// a Repository (the cache) and an Engine (evaluation).
type Client struct {
	cfg          *config.Config
	log          *slog.Logger
	repo         *repository.Repository
	engine       *ruleengine.Engine
	cacheChecker observability.Checker
}

// New validates cfg, wires the logger/cache-store/Repository/Engine, starts
// the Repository's background refresh, and blocks until the first fetch
// resolves or cfg.Client.InitializationTimeout elapses.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	validation.AssertNotNil(cfg, "config")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heimdall: invalid config: %w", err)
	}

	log := logger.New(&cfg.App)

	store, cacheChecker, err := buildCacheStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("heimdall: building L2 cache store: %w", err)
	}

	metrics := repositoryMetrics{}

	repoCfg := repository.Config{
		ClientKey:               cfg.Client.ClientKey,
		APIHost:                 cfg.Client.APIHost,
		DecryptionKey:           cfg.Client.DecryptionKey,
		SWRTTLSeconds:           int(cfg.Client.SWRTTL.Seconds()),
		RefreshStrategy:         repository.RefreshStrategy(cfg.Client.RefreshStrategy),
		InitializationTimeoutMS: int(cfg.Client.InitializationTimeout.Milliseconds()),
	}

	repo, err := repository.New(repoCfg, log, store, metrics)
	if err != nil {
		return nil, fmt.Errorf("heimdall: constructing repository: %w", err)
	}

	repo.Start(ctx)

	if err := repo.AwaitInitialization(cfg.Client.InitializationTimeout); err != nil {
		log.Warn("heimdall: initial fetch did not complete in time, continuing with an empty feature set", "error", err)
	}

	return &Client{
		cfg:          cfg,
		log:          log,
		repo:         repo,
		engine:       ruleengine.New(log),
		cacheChecker: cacheChecker,
	}, nil
}

// buildCacheStore returns a Redis-backed Store when configured, otherwise
// the in-process MemoryStore default. It also returns an
// observability.Checker for the store — nil for the in-process default,
// since there is nothing external to probe.
func buildCacheStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.Store, observability.Checker, error) {
	if !cfg.Cache.IsConfigured() {
		return cache.NewMemoryStore(), nil, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.Cache, log)
	if err != nil {
		return nil, nil, err
	}
	return store, cache.NewHealthChecker(store), nil
}

// BuildContext assembles an evaluation Context from request-scoped
// attributes. If features is nil, it lazily queries the Repository for
// the current snapshot; pass a non-nil map to evaluate against an
// explicit, caller-supplied feature set instead.
func (c *Client) BuildContext(attrs map[string]any, features map[string]*ruleengine.Feature) *ruleengine.Context {
	if features == nil {
		features = c.repo.GetFeatures()
	}
	return &ruleengine.Context{
		Attributes: attrs,
		Features:   features,
		Enabled:    true,
	}
}

// Feature evaluates a single feature flag for evalCtx.
func (c *Client) Feature(evalCtx *ruleengine.Context, id string) ruleengine.FeatureResult {
	result := c.engine.Feature(evalCtx, id)
	observability.EvaluationTotal.WithLabelValues(string(result.Source)).Inc()
	return result
}

// Run evaluates an inline experiment for evalCtx.
func (c *Client) Run(evalCtx *ruleengine.Context, exp *ruleengine.Experiment) ruleengine.ExperimentResult {
	result := c.engine.Run(evalCtx, exp, "", nil)
	source := ruleengine.SourceExperiment
	if !result.InExperiment {
		source = ruleengine.SourceDefaultValue
	}
	observability.EvaluationTotal.WithLabelValues(string(source)).Inc()
	return result
}

// Refresh triggers a synchronous, explicit fetch from the origin.
func (c *Client) Refresh(ctx context.Context) error {
	return c.repo.Refresh(ctx)
}

// GetFeatures returns the Client's current feature snapshot.
func (c *Client) GetFeatures() map[string]*ruleengine.Feature {
	return c.repo.GetFeatures()
}

// Subscribe registers fn to run after every successful background
// refresh. Re-registering the same id replaces the previous subscriber.
func (c *Client) Subscribe(id string, fn func(map[string]*ruleengine.Feature)) {
	c.repo.Subscribe(id, fn)
}

// Unsubscribe removes a previously registered subscriber.
func (c *Client) Unsubscribe(id string) {
	c.repo.Unsubscribe(id)
}

// Checkers returns the observability.Checker implementations this Client
// exposes, for wiring into an observability.Server's readiness probe.
func (c *Client) Checkers() []observability.Checker {
	checkers := []observability.Checker{c.repo}
	if c.cacheChecker != nil {
		checkers = append(checkers, c.cacheChecker)
	}
	return checkers
}

// Shutdown stops the Repository's background refresh and waits (bounded
// by ctx) for in-flight work to finish.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.repo.Shutdown(ctx)
}

// repositoryMetrics adapts the package-level observability metrics to
// repository.MetricsRecorder.
type repositoryMetrics struct{}

func (repositoryMetrics) ObserveFetch(outcome string, duration time.Duration) {
	observability.RepositoryFetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	observability.RepositoryFetchTotal.WithLabelValues(outcome).Inc()
}

func (repositoryMetrics) IncRefresh(trigger repository.RefreshTrigger) {
	observability.RepositoryRefreshTotal.WithLabelValues(string(trigger)).Inc()
}

func (repositoryMetrics) SetCacheAge(age time.Duration) {
	observability.RepositoryCacheAge.Set(age.Seconds())
}
