package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheOperationsTotal    *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Store metrics
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Access metrics
	PermissionDecisionsTotal *prometheus.CounterVec
	TerritoryFiltersTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caseboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		CacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_cache_operations_total",
				Help: "Total number of cache operations by outcome",
			},
			[]string{"operation", "result"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_cache_invalidations_total",
				Help: "Total number of cache invalidations",
			},
			[]string{"namespace", "kind"},
		),

		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caseboard_store_operation_duration_seconds",
				Help:    "Relational store load duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_store_errors_total",
				Help: "Total number of relational store errors",
			},
			[]string{"operation"},
		),

		PermissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_permission_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"resource", "action", "decision"},
		),
		TerritoryFiltersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caseboard_territory_filters_total",
				Help: "Total number of territory filters resolved by scope",
			},
			[]string{"scope"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheOperationsTotal,
		m.CacheInvalidationsTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.PermissionDecisionsTotal,
		m.TerritoryFiltersTotal,
	)

	return m
}

// RecordCacheOperation counts a cache operation outcome
func (m *Metrics) RecordCacheOperation(op, result string) {
	if m == nil {
		return
	}
	m.CacheOperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordInvalidation counts a cache invalidation. kind is "user" or "all".
func (m *Metrics) RecordInvalidation(namespace, kind string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(namespace, kind).Inc()
}

// ObserveStoreOperation records a store call's latency and failure
func (m *Metrics) ObserveStoreOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(op).Inc()
	}
}

// RecordDecision counts a permission decision
func (m *Metrics) RecordDecision(resource, action string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.PermissionDecisionsTotal.WithLabelValues(resource, action, decision).Inc()
}

// RecordTerritoryFilter counts a resolved territory scope
func (m *Metrics) RecordTerritoryFilter(scope string) {
	if m == nil {
		return
	}
	m.TerritoryFiltersTotal.WithLabelValues(scope).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled by
// their mux route template to keep label cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
