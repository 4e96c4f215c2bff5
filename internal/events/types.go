// Package events fans pipeline state changes out to consumers: the log,
// Prometheus, an MQTT broker and shoutrrr notification services.
package events

import (
	"context"
	"time"
)

// Type names a pipeline state transition
type Type string

const (
	FileStarted   Type = "file.started"
	FileSkipped   Type = "file.skipped"
	FileSucceeded Type = "file.succeeded"
	FileFailed    Type = "file.failed"
	VisitUpserted Type = "visit.upserted"
	GroupSkipped  Type = "group.skipped"
	BatchFinished Type = "batch.finished"
)

// Event is one state transition. Fields irrelevant to the type are zero.
type Event struct {
	Type            Type      `json:"type"`
	Time            time.Time `json:"time"`
	FileID          uint      `json:"file_id,omitempty"`
	Path            string    `json:"path,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	ElapsedSeconds  float64   `json:"elapsed_seconds,omitempty"`
	Frames          int       `json:"frames,omitempty"`
	Detections      int       `json:"detections,omitempty"`
	EdgeDetections  int       `json:"edge_detections,omitempty"`
	Classified      int       `json:"classified,omitempty"`
	Unclassified    int       `json:"unclassified,omitempty"`
	Visits          int       `json:"visits,omitempty"`
	VisitID         uint      `json:"visit_id,omitempty"`
	TaxonID         int       `json:"taxon_id,omitempty"`
	Species         string    `json:"species,omitempty"`
	Processed       int       `json:"processed,omitempty"`
	Error           string    `json:"error,omitempty"`
	ErrorCategory   string    `json:"error_category,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// Publisher accepts events without blocking
type Publisher interface {
	Publish(e Event)
}

// Consumer receives events from the Bus
type Consumer interface {
	// Name identifies the consumer in logs and metrics
	Name() string
	// Consume handles one event; errors are logged and counted
	Consume(ctx context.Context, e Event) error
}

// Discard is a Publisher that drops everything
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
