package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/heimdall-sdk/heimdall/internal/logger"
)

// FeatureSummary is the introspection view of a single feature: enough to
// confirm what the Repository currently holds without exposing internal
// rule structures verbatim.
type FeatureSummary struct {
	Key          string `json:"key"`
	DefaultValue any    `json:"default_value"`
	RuleCount    int    `json:"rule_count"`
}

// ErrorResponse is a structured API error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleListFeatures processes GET /api/v1/features.
func (a *API) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	features := a.repo.GetFeatures()

	out := make([]FeatureSummary, 0, len(features))
	for key, f := range features {
		out = append(out, FeatureSummary{
			Key:          key,
			DefaultValue: f.DefaultValue,
			RuleCount:    len(f.Rules),
		})
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{"features": out})
}

// handleGetFeature processes GET /api/v1/features/{key}.
func (a *API) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	feature, ok := a.repo.GetFeatures()[key]
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NOT_FOUND",
			Message: "no feature with key " + key,
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, FeatureSummary{
		Key:          key,
		DefaultValue: feature.DefaultValue,
		RuleCount:    len(feature.Rules),
	})
}

// handleRefresh processes POST /api/v1/refresh, forcing an out-of-band
// fetch against the origin regardless of the configured refresh strategy.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if err := a.repo.Refresh(r.Context()); err != nil {
		log.Error("admin-triggered refresh failed", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_REFRESH_FAILED",
			Message: err.Error(),
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "refreshed"})
}
