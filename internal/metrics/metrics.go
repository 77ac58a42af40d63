// Package metrics holds the prometheus collectors for the extraction pipeline
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keiba"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns       *prometheus.CounterVec
	Tickets            *prometheus.CounterVec
	FallbackRuns       prometheus.Counter
	AIFailures         *prometheus.CounterVec
	ReconcileConflicts prometheus.Counter
	OCRLatency         *prometheus.HistogramVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry. withRuntime adds the Go
// and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
		)
	}

	m := &Metrics{
		registry: reg,
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		Tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tickets_total",
			Help:      "Tickets emitted by provenance.",
		}, []string{"provenance"}),
		FallbackRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fallback_total",
			Help:      "Fallback extractor invocations.",
		}),
		AIFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "failures_total",
			Help:      "Structured extraction failures by reason.",
		}, []string{"reason"}),
		ReconcileConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "amount_conflicts_total",
			Help:      "Tickets whose local and AI stakes disagreed.",
		}),
		OCRLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "duration_seconds",
			Help:      "OCR text source latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16},
		}, []string{"engine", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.PipelineRuns, m.Tickets, m.FallbackRuns, m.AIFailures,
		m.ReconcileConflicts, m.OCRLatency, m.HTTPDuration)
	return m
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// The methods below are nil-safe so callers can run without metrics.

func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTickets(provenance string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Tickets.WithLabelValues(provenance).Add(float64(n))
}

func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.FallbackRuns.Inc()
}

func (m *Metrics) ObserveAIFailure(reason string) {
	if m == nil {
		return
	}
	m.AIFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileConflicts.Add(float64(n))
}

func (m *Metrics) ObserveOCR(engine string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OCRLatency.WithLabelValues(engine, status).Observe(d.Seconds())
}

// Middleware records request duration labelled by the matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
