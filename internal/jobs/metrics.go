// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded in the status label.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRejected = "rejected"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	warnings *prometheus.CounterVec
}

// NewMetrics registers the job collectors with registerer, or with the
// default registerer when nil. Collectors already registered under the same
// names are reused, so repeated calls share one set of series.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		runs: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance360_jobs_total",
			Help: "Total job executions partitioned by job name and status.",
		}, []string{"job", "status"})),
		failures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance360_jobs_failures_total",
			Help: "Job executions that will be retried.",
		}, []string{"job"})),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balance360_job_duration_seconds",
			Help:    "Duration in seconds of background job executions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"})),
		warnings: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance360_job_statement_warnings_total",
			Help: "Statement warnings produced by background builds, by kind.",
		}, []string{"job", "kind"})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged. Errors wrapping
// asynq.SkipRetry count as rejected rather than failed.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, asynq.SkipRetry):
		status = StatusRejected
	default:
		status = StatusFailure
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddWarnings counts statement warnings a job run produced, by kind.
func (m *Metrics) AddWarnings(job, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.warnings.WithLabelValues(job, kind).Add(float64(count))
}
