// Package metrics provides the Prometheus collectors of birdhomie.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Detection kinds
const (
	DetectionBird       = "bird"
	DetectionEdge       = "edge"
	DetectionClassified = "classified"
	DetectionUnknown    = "unknown"
)

// PipelineMetrics covers file processing.
type PipelineMetrics struct {
	FilesProcessed *prometheus.CounterVec
	FileDuration   prometheus.Histogram
	FramesSampled  prometheus.Counter
	Detections     *prometheus.CounterVec
	VisitsUpserted prometheus.Counter
	GroupsSkipped  prometheus.Counter
	Errors         *prometheus.CounterVec
	ModelLoads     *prometheus.CounterVec
	InFlight       prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.FilesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdhomie_files_processed_total",
		Help: "Files processed by final status (success, failed, skipped).",
	}, []string{"status"})

	m.FileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "birdhomie_file_processing_duration_seconds",
		Help:    "Wall time spent processing a single file.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	m.FramesSampled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdhomie_frames_sampled_total",
		Help: "Frames passed to the detector.",
	})

	m.Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdhomie_detections_total",
		Help: "Bird detections by kind (bird, edge, classified, unknown).",
	}, []string{"kind"})

	m.VisitsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdhomie_visits_upserted_total",
		Help: "Visits created or replaced.",
	})

	m.GroupsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdhomie_species_groups_skipped_total",
		Help: "Species groups dropped because the taxon could not be resolved.",
	})

	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdhomie_processing_errors_total",
		Help: "Processing errors by category.",
	}, []string{"category"})

	m.ModelLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdhomie_model_loads_total",
		Help: "Model load attempts by model and status.",
	}, []string{"model", "status"})

	m.InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "birdhomie_files_in_flight",
		Help: "Files currently being processed.",
	})
}

// RecordFile counts a finished file and its duration.
func (m *PipelineMetrics) RecordFile(status string, elapsed time.Duration) {
	m.FilesProcessed.WithLabelValues(status).Inc()
	if status != "skipped" {
		m.FileDuration.Observe(elapsed.Seconds())
	}
}

// AddDetections adds n detections of kind.
func (m *PipelineMetrics) AddDetections(kind string, n int) {
	if n > 0 {
		m.Detections.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordError counts an error by category.
func (m *PipelineMetrics) RecordError(category string) {
	m.Errors.WithLabelValues(category).Inc()
}

// RecordModelLoad counts a model load attempt.
func (m *PipelineMetrics) RecordModelLoad(model string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ModelLoads.WithLabelValues(model, status).Inc()
}

// Describe implements prometheus.Collector.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesProcessed.Describe(ch)
	ch <- m.FileDuration.Desc()
	ch <- m.FramesSampled.Desc()
	m.Detections.Describe(ch)
	ch <- m.VisitsUpserted.Desc()
	ch <- m.GroupsSkipped.Desc()
	m.Errors.Describe(ch)
	m.ModelLoads.Describe(ch)
	ch <- m.InFlight.Desc()
}

// Collect implements prometheus.Collector.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesProcessed.Collect(ch)
	ch <- m.FileDuration
	ch <- m.FramesSampled
	m.Detections.Collect(ch)
	ch <- m.VisitsUpserted
	ch <- m.GroupsSkipped
	m.Errors.Collect(ch)
	m.ModelLoads.Collect(ch)
	ch <- m.InFlight
}
