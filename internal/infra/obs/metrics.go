package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "stayrate", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stayrate", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	cacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "stayrate", Name: "cache_events_total", Help: "Aggregate cache hits/misses/sets/dels."},
		[]string{"cache", "event"},
	)
	reconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "stayrate", Name: "reconcile_runs_total", Help: "Reconciliation outcomes per entity."},
		[]string{"outcome"}, // clean|repaired|failed
	)
	versionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "stayrate", Name: "version_conflicts_total", Help: "Optimistic-concurrency write rejections."},
		[]string{"store"},
	)
)

// MetricsHandler serves the default registry on /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveCache records a cache event: hit, miss, set or del.
func ObserveCache(cache, event string) {
	cacheEvents.WithLabelValues(cache, event).Inc()
}

// ObserveReconcile records the outcome of one reconciliation pass.
func ObserveReconcile(outcome string) {
	reconcileRuns.WithLabelValues(outcome).Inc()
}

// ObserveVersionConflict records a rejected conditional write.
func ObserveVersionConflict(store string) {
	versionConflicts.WithLabelValues(store).Inc()
}
