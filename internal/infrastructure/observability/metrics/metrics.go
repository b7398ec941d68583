// Package metrics exposes Prometheus instruments for ingest, the session
// lifecycle, aggregation, the article cache and HTTP handling.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRecorded counts stored events by family and outcome.
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readership_events_recorded_total",
		Help: "Events written to the event store by family and outcome",
	}, []string{"family", "outcome"})

	// MetadataDropped counts events stored without their metadata.
	MetadataDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readership_metadata_dropped_total",
		Help: "Events recorded with metadata omitted after a serialization failure",
	}, []string{"family"})

	// SessionTransitions counts lifecycle calls by operation and outcome.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readership_session_transitions_total",
		Help: "Reading session lifecycle calls by operation and outcome",
	}, []string{"operation", "outcome"})

	// SessionDuration observes durations of completed sessions.
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readership_session_duration_seconds",
		Help:    "Duration of completed reading sessions",
		Buckets: []float64{10, 30, 60, 120, 240, 480, 900, 1800, 3600},
	})

	// AggregationDuration observes dashboard computation time.
	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readership_aggregation_duration_seconds",
		Help:    "Time spent computing dashboard statistics",
		Buckets: prometheus.DefBuckets,
	})

	// CacheLookups counts article metadata cache lookups.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readership_article_cache_lookups_total",
		Help: "Article metadata cache lookups by backend and result",
	}, []string{"backend", "result"})

	// CacheEvictions counts entries purged by the cleanup worker.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readership_article_cache_evictions_total",
		Help: "Expired article metadata entries purged",
	})

	// HTTPRequests counts handled requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readership_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	// HTTPLatency observes handler latency.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "readership_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeNoop      = "noop"
	OutcomeDuplicate = "duplicate"
	OutcomeUnknown   = "unknown"
)

// RecordEvent increments the event counter for family.
func RecordEvent(family string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	EventsRecorded.WithLabelValues(family, outcome).Inc()
}

// RecordSessionTransition increments the lifecycle counter.
func RecordSessionTransition(operation, outcome string) {
	SessionTransitions.WithLabelValues(operation, outcome).Inc()
}

// RecordCacheLookup increments the cache counter.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(backend, result).Inc()
}

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
