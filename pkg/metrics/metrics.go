// Package metrics defines the Prometheus collectors used by a search node and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a node.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram

	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal prometheus.Counter

	IndexDocuments      prometheus.Gauge
	IndexTerms          prometheus.Gauge
	IndexMutationsTotal *prometheus.CounterVec

	ReplicationDeliveriesTotal *prometheus.CounterVec
	ReplicationReceivedTotal   *prometheus.CounterVec
	ReplicationDroppedTotal    prometheus.Counter
	PeerCircuitState           *prometheus.GaugeVec

	TelemetryDroppedTotal prometheus.Counter
}

// New creates all collectors and registers them on reg. A nil reg uses the
// process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		CacheInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_invalidations_total",
				Help: "Total full cache invalidations.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Documents currently indexed.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct tokens currently indexed.",
			},
		),
		IndexMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_mutations_total",
				Help: "Index mutations by action and source (local, replica).",
			},
			[]string{"action", "source"},
		),
		ReplicationDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_deliveries_total",
				Help: "Replication delivery attempts by peer and outcome.",
			},
			[]string{"peer", "outcome"},
		),
		ReplicationReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_intents_received_total",
				Help: "Replication intents received by outcome (applied, loop, error).",
			},
			[]string{"outcome"},
		),
		ReplicationDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "replication_intents_dropped_total",
				Help: "Outgoing intents dropped because the dispatch queue was full.",
			},
		),
		PeerCircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "peer_circuit_state",
				Help: "Per-peer circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"peer"},
		),
		TelemetryDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_events_dropped_total",
				Help: "Query telemetry events dropped because the buffer was full.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.IndexDocuments,
		m.IndexTerms,
		m.IndexMutationsTotal,
		m.ReplicationDeliveriesTotal,
		m.ReplicationReceivedTotal,
		m.ReplicationDroppedTotal,
		m.PeerCircuitState,
		m.TelemetryDroppedTotal,
	)

	return m
}

// NewNop returns collectors registered on a private registry, for tests and
// tools that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
