// Package metrics provides Prometheus metrics for the NoteHub server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Serving metrics
	serveDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_serve_decisions_total",
			Help: "View/download requests by chosen strategy",
		},
		[]string{"action", "strategy"},
	)

	streamedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notehub_streamed_bytes_total",
			Help: "Total bytes proxied from the storage provider to clients",
		},
	)

	streamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_streams_total",
			Help: "Total number of proxied content streams",
		},
		[]string{"status"},
	)

	searchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_search_queries_total",
			Help: "Search requests by outcome (empty, upstream, rejected)",
		},
		[]string{"outcome"},
	)

	// Quota metrics
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notehub_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// Upstream provider metrics
	upstreamOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notehub_upstream_operation_duration_seconds",
			Help:    "Storage provider operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	upstreamOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_upstream_operations_total",
			Help: "Total storage provider operations",
		},
		[]string{"provider", "operation", "status"},
	)

	upstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notehub_upstream_retries_total",
			Help: "Storage provider calls retried after a transient failure",
		},
		[]string{"provider", "operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordServeDecision records whether a view/download was proxied or redirected.
func RecordServeDecision(action string, redirect bool) {
	strategy := "proxy"
	if redirect {
		strategy = "redirect"
	}
	serveDecisionsTotal.WithLabelValues(action, strategy).Inc()
}

// RecordStream records a proxied content stream.
func RecordStream(bytes int64, success bool) {
	streamedBytesTotal.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	streamsTotal.WithLabelValues(status).Inc()
}

// RecordSearch records a search request outcome.
func RecordSearch(outcome string) {
	searchQueriesTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordUpstreamOperation records a storage provider call.
func RecordUpstreamOperation(provider, operation string, duration time.Duration, success bool) {
	upstreamOperationDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	upstreamOperationsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordUpstreamRetry records a retried storage provider call.
func RecordUpstreamRetry(provider, operation string) {
	upstreamRetriesTotal.WithLabelValues(provider, operation).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// Requests are labelled by the matched mux pattern so file ids do not
// explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
