package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., heimdall_...).
const namespace = "heimdall"

var (
	// RepositoryFetchDuration measures the latency of origin fetches against
	// the features API.
	// Metric: heimdall_repository_fetch_duration_seconds
	RepositoryFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "fetch_duration_seconds",
		Help:      "Time taken to fetch and decode the feature payload from the origin",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"}) // success, error

	// RepositoryFetchTotal counts origin fetch attempts.
	// Metric: heimdall_repository_fetch_total
	RepositoryFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "fetch_total",
		Help:      "Total feature payload fetches attempted against the origin",
	}, []string{"outcome"})

	// RepositoryRefreshTotal counts refreshes by what triggered them.
	// Metric: heimdall_repository_refresh_total
	RepositoryRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "refresh_total",
		Help:      "Total refreshes, labeled by trigger",
	}, []string{"trigger"}) // initial, timer, manual, stale_read

	// RepositoryCacheAge reports how stale the in-memory feature set is.
	// Metric: heimdall_repository_cache_age_seconds
	RepositoryCacheAge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "cache_age_seconds",
		Help:      "Seconds since the in-memory feature set was last successfully refreshed",
	})

	// EvaluationTotal counts feature/experiment evaluations by the source
	// of the resolved result.
	// Metric: heimdall_evaluation_total
	EvaluationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluation_total",
		Help:      "Total feature evaluations, labeled by result source",
	}, []string{"source"}) // unknown_feature, default_value, force, experiment, cyclic_prerequisite, prerequisite
)
