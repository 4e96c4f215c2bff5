package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics covers scheduled task runs.
type JobMetrics struct {
	Runs     *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Skipped  *prometheus.CounterVec
}

// NewJobMetrics creates and registers the job collectors.
func NewJobMetrics(registry prometheus.Registerer) (*JobMetrics, error) {
	m := &JobMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdhomie_job_runs_total",
			Help: "Task runs by job type and status.",
		}, []string{"job_type", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "birdhomie_job_duration_seconds",
			Help:    "Task run duration by job type and status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"job_type", "status"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdhomie_job_skipped_total",
			Help: "Runs skipped because another run of the same type held the lock.",
		}, []string{"job_type"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register job metrics: %w", err)
	}
	return m, nil
}

// RecordRun counts a finished run.
func (m *JobMetrics) RecordRun(jobType, status string, elapsed time.Duration) {
	m.Runs.WithLabelValues(jobType, status).Inc()
	m.Duration.WithLabelValues(jobType, status).Observe(elapsed.Seconds())
}

// RecordSkipped counts a run that did not get the lock.
func (m *JobMetrics) RecordSkipped(jobType string) {
	m.Skipped.WithLabelValues(jobType).Inc()
}

// Describe implements prometheus.Collector.
func (m *JobMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Runs.Describe(ch)
	m.Duration.Describe(ch)
	m.Skipped.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *JobMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Runs.Collect(ch)
	m.Duration.Collect(ch)
	m.Skipped.Collect(ch)
}
