// Package metrics exposes Prometheus collectors for the scheduling core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studio"

// Metrics owns a private registry so tests and embedded servers do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	creditAdjustments *prometheus.CounterVec
	propagatedEvents  *prometheus.CounterVec
	droppedTemplates  prometheus.Counter
	slotSearches      prometheus.Counter
	slotResults       prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		creditAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_adjustments_total",
			Help:      "Class credit adjustments by result.",
		}, []string{"result"}),
		propagatedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagated_events_total",
			Help:      "Events produced by template propagation by outcome.",
		}, []string{"outcome"}),
		droppedTemplates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_templates_total",
			Help:      "Templates skipped during propagation.",
		}),
		slotSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_searches_total",
			Help:      "Availability searches served.",
		}),
		slotResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_search_results",
			Help:      "Slots returned per availability search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status_code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.creditAdjustments,
		m.propagatedEvents,
		m.droppedTemplates,
		m.slotSearches,
		m.slotResults,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// CreditAdjustment counts one ledger write attempt outcome.
func (m *Metrics) CreditAdjustment(result string) {
	if m == nil {
		return
	}
	m.creditAdjustments.WithLabelValues(result).Inc()
}

// PropagatedEvents adds n events with outcome "inserted" or "skipped".
func (m *Metrics) PropagatedEvents(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.propagatedEvents.WithLabelValues(outcome).Add(float64(n))
}

// DroppedTemplates adds n skipped templates.
func (m *Metrics) DroppedTemplates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedTemplates.Add(float64(n))
}

// SlotSearch records one availability search returning results slots.
func (m *Metrics) SlotSearch(results int) {
	if m == nil {
		return
	}
	m.slotSearches.Inc()
	m.slotResults.Observe(float64(results))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency. route maps a request to a
// low-cardinality path label.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if route != nil {
				path = route(r)
			}
			labels := []string{r.Method, path, strconv.Itoa(rec.status)}
			m.httpRequests.WithLabelValues(labels...).Inc()
			m.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
