// Package adminapi implements a read-only introspection API for a running
// Heimdall client: it exposes the currently cached feature set and lets an
// operator trigger an out-of-band refresh. It never accepts flag mutations —
// the feature definitions themselves are owned by the origin, not by this
// process.
package adminapi

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
)

// FeatureSource is the subset of the Repository this API depends on.
type FeatureSource interface {
	GetFeatures() map[string]*ruleengine.Feature
	Refresh(ctx context.Context) error
}

// API is the admin HTTP surface for a Heimdall client instance.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	repo FeatureSource

	apiKeyHash string
	skipAuth   bool
}

// NewAPI creates an API instance with authentication enabled.
// The apiKeyHash parameter must be the SHA-256 hash of the valid API key.
func NewAPI(repo FeatureSource, apiKeyHash string) *API {
	return NewAPIWithConfig(repo, apiKeyHash, false)
}

// NewAPIWithConfig creates an API instance with explicit control over
// authentication. skipAuth disables API key checking on every route.
func NewAPIWithConfig(repo FeatureSource, apiKeyHash string, skipAuth bool) *API {
	if repo == nil {
		panic("adminapi: feature source cannot be nil")
	}
	if !skipAuth && apiKeyHash == "" {
		panic("adminapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	a := &API{
		Router:     chi.NewRouter(),
		repo:       repo,
		apiKeyHash: apiKeyHash,
		skipAuth:   skipAuth,
	}

	a.configureRoutes()
	return a
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Get("/features", a.handleListFeatures)
		r.Get("/features/{key}", a.handleGetFeature)
		r.Post("/refresh", a.handleRefresh)
	})
}
