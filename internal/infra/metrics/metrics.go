// Package metrics exposes the Prometheus instruments shared by the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Aggregation branches
	BranchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discover_branch_duration_seconds",
			Help:    "Duration of aggregation branches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request", "source"},
	)

	BranchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_branch_results_total",
			Help: "Total number of aggregation branch outcomes",
		},
		[]string{"request", "source", "outcome"}, // "ok", "error", "timeout"
	)

	// Provider calls
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_provider_requests_total",
			Help: "Total number of outbound provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	// Response cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_response_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"operation"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_response_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"operation"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_response_cache_errors_total",
			Help: "Total number of response cache backend errors (served as misses)",
		},
		[]string{"operation", "stage"}, // "get", "set", "decode"
	)

	// Credential cache
	CredentialExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_credential_exchanges_total",
			Help: "Total number of client-credential token exchanges",
		},
		[]string{"status"},
	)

	// Preference writes
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_interactions_total",
			Help: "Total number of recorded track interactions",
		},
		[]string{"action"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discover_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discover_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordBranch records the outcome of an aggregation branch.
func RecordBranch(request, source, outcome string, d time.Duration) {
	BranchDuration.WithLabelValues(request, source).Observe(d.Seconds())
	BranchResults.WithLabelValues(request, source, outcome).Inc()
}

// RecordAPIRequest records a served API request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
