// Package metrics exposes retrieval, indexing and HTTP metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wislaw"

// Query outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeUnavailable = "unavailable"
	OutcomeBadFilter   = "bad_filter"
	OutcomeError       = "error"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal      *prometheus.CounterVec
	crossRefLookups   *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	retrievalResults  prometheus.Histogram
	confidence        prometheus.Histogram
	passagesLoaded    *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total retrieval queries by outcome.",
		},
		[]string{"outcome"},
	)
	crossRefLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "crossref_lookups_total",
			Help:      "Cross-reference section lookups by status.",
		},
		[]string{"status"},
	)
	retrievalDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	retrievalResults := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of returned entries per retrieval, cross references included.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
	confidence := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "confidence",
			Help:      "Distribution of retrieval confidence.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
	passagesLoaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "passages_loaded_total",
			Help:      "Passages written by the passage loader, by status.",
		},
		[]string{"status"},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)

	registry.MustRegister(
		queriesTotal,
		crossRefLookups,
		retrievalDuration,
		retrievalResults,
		confidence,
		passagesLoaded,
		requestTotal,
		requestDuration,
		requestInFlight,
	)

	return &Metrics{
		registry:          registry,
		queriesTotal:      queriesTotal,
		crossRefLookups:   crossRefLookups,
		retrievalDuration: retrievalDuration,
		retrievalResults:  retrievalResults,
		confidence:        confidence,
		passagesLoaded:    passagesLoaded,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery records one finished retrieval.
func (m *Metrics) RecordQuery(outcome string, results int, confidence float64, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeError
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.retrievalDuration.Observe(duration.Seconds())
	if outcome == OutcomeOK || outcome == OutcomeEmpty {
		m.retrievalResults.Observe(float64(results))
		m.confidence.Observe(confidence)
	}
}

// RecordCrossRefLookup records the status of one cross-reference lookup.
func (m *Metrics) RecordCrossRefLookup(status string) {
	if m == nil {
		return
	}
	m.crossRefLookups.WithLabelValues(status).Inc()
}

// RecordPassagesLoaded adds n passages with the given status ("ok" or "failed").
func (m *Metrics) RecordPassagesLoaded(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.passagesLoaded.WithLabelValues(status).Add(float64(n))
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
