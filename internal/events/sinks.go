package events

import (
	"context"
	"time"

	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/observability/metrics"
)

// LogSink writes every event to a logger
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a LogSink; a nil log uses the module logger
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = GetLogger()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Consume(_ context.Context, e Event) error {
	fields := []logger.Field{
		logger.String("type", string(e.Type)),
		logger.Time("time", e.Time),
	}
	if e.FileID != 0 {
		fields = append(fields, logger.Int64("file_id", int64(e.FileID)))
	}
	if e.Path != "" {
		fields = append(fields, logger.String("path", e.Path))
	}
	switch e.Type {
	case FileSucceeded:
		fields = append(fields,
			logger.Int("detections", e.Detections),
			logger.Int("visits", e.Visits),
			logger.Float64("elapsed_seconds", e.ElapsedSeconds))
	case VisitUpserted:
		fields = append(fields,
			logger.Int64("visit_id", int64(e.VisitID)),
			logger.Int("taxon_id", e.TaxonID),
			logger.String("species", e.Species))
	case BatchFinished:
		fields = append(fields, logger.Int("processed", e.Processed))
	}

	switch e.Type {
	case FileFailed:
		fields = append(fields,
			logger.String("error", e.Error),
			logger.String("error_category", e.ErrorCategory))
		s.log.Warn("pipeline event", fields...)
	case GroupSkipped:
		fields = append(fields, logger.String("species", e.Species), logger.String("reason", e.Reason))
		s.log.Warn("pipeline event", fields...)
	default:
		s.log.Debug("pipeline event", fields...)
	}
	return nil
}

// MetricsSink turns events into pipeline metrics
type MetricsSink struct {
	m *metrics.PipelineMetrics
}

// NewMetricsSink creates a MetricsSink over m
func NewMetricsSink(m *metrics.PipelineMetrics) *MetricsSink {
	return &MetricsSink{m: m}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Consume(_ context.Context, e Event) error {
	elapsed := time.Duration(e.ElapsedSeconds * float64(time.Second))
	switch e.Type {
	case FileSkipped:
		s.m.RecordFile("skipped", 0)
	case FileSucceeded:
		s.m.RecordFile("success", elapsed)
		s.m.FramesSampled.Add(float64(e.Frames))
		s.m.AddDetections(metrics.DetectionBird, e.Detections)
		s.m.AddDetections(metrics.DetectionEdge, e.EdgeDetections)
		s.m.AddDetections(metrics.DetectionClassified, e.Classified)
		s.m.AddDetections(metrics.DetectionUnknown, e.Unclassified)
	case FileFailed:
		s.m.RecordFile("failed", elapsed)
		category := e.ErrorCategory
		if category == "" {
			category = "generic"
		}
		s.m.RecordError(category)
	case VisitUpserted:
		s.m.VisitsUpserted.Inc()
	case GroupSkipped:
		s.m.GroupsSkipped.Inc()
	}
	return nil
}
