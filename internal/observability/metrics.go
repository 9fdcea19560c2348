// Package observability exposes the Prometheus registry shared by the API and the worker.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
)

const namespace = "odyssey"

type httpCollectors struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	replays    *prometheus.CounterVec
}

func newHTTPCollectors() httpCollectors {
	return httpCollectors{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 1.5, 3, 6},
		}, []string{"route"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "business", Name: "rejections_total",
			Help: "Write requests refused by a workflow rule such as short stock or an illegal status change.",
		}, []string{"route", "method"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "idempotency", Name: "replays_total",
			Help: "Write requests rejected because their Idempotency-Key was already used.",
		}, []string{"route"}),
	}
}

func (c httpCollectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.requests, c.latency, c.rejections, c.replays}
}

// Metrics owns one registry; the worker only reads Jobs from it.
type Metrics struct {
	handler http.Handler
	http    httpCollectors
	jobs    *jobmetrics.Metrics
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	collectors := newHTTPCollectors()
	registry.MustRegister(collectors.all()...)
	return &Metrics{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		http:    collectors,
		jobs:    jobmetrics.NewMetrics(registry),
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Middleware records count and latency per route pattern. 422 answers to writes also count
// as business rejections.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		m.http.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.http.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if recorder.status == http.StatusUnprocessableEntity && r.Method != http.MethodGet {
			m.http.rejections.WithLabelValues(route, r.Method).Inc()
		}
	})
}

func (m *Metrics) IdempotencyReplay(r *http.Request) {
	if m == nil {
		return
	}
	m.http.replays.WithLabelValues(routePattern(r)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
