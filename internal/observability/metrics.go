package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esgari/balance360/internal/balance"
)

// Metrics holds the HTTP and statement collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	difference      prometheus.Gauge
	balanced        prometheus.Gauge
	unmapped        *prometheus.GaugeVec
	warnings        *prometheus.GaugeVec
}

// NewMetrics creates the registry with Go runtime, process, HTTP and
// statement collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balance360_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balance360_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	difference := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balance360_statement_difference",
		Help: "Residual of the last consolidated statement under its sign convention.",
	})
	balanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balance360_statement_balanced",
		Help: "1 when the last consolidated statement balanced within tolerance, else 0.",
	})
	unmapped := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "balance360_unmapped_accounts",
		Help: "Unmapped ledger accounts per entity in the last build.",
	}, []string{"entity"})
	warnings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "balance360_statement_warnings",
		Help: "Warnings by kind in the last build.",
	}, []string{"kind"})
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, difference, balanced, unmapped, warnings,
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		difference:      difference,
		balanced:        balanced,
		unmapped:        unmapped,
		warnings:        warnings,
	}
}

// ObserveStatement replaces the statement gauges with stmt's values.
func (m *Metrics) ObserveStatement(stmt balance.Statement) {
	if m == nil {
		return
	}
	m.difference.Set(stmt.Totals.Difference.InexactFloat64())
	if stmt.Totals.Balanced() {
		m.balanced.Set(1)
	} else {
		m.balanced.Set(0)
	}
	m.unmapped.Reset()
	for _, res := range stmt.PerEntity {
		m.unmapped.WithLabelValues(res.Entity).Set(float64(res.Unmapped))
	}
	m.warnings.Reset()
	counts := make(map[balance.WarningKind]int)
	for _, w := range stmt.Warnings {
		counts[w.Kind]++
	}
	for kind, n := range counts {
		m.warnings.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware counts and times requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry to collectors owned by other packages.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
