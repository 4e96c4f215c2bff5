// Package detection provides the domain model for per-frame bird detections.
// These models are used at runtime by the pipeline and are independent of
// the database schema; Mapper converts them to datastore entities.
package detection

import (
	"context"
	"fmt"
	"image"
)

// BBox is an axis-aligned box in pixel coordinates, with (X1, Y1) the top-left
// and (X2, Y2) the bottom-right corner
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Width of the box, 0 for degenerate boxes
func (b BBox) Width() int {
	return max(0, b.X2-b.X1)
}

// Height of the box, 0 for degenerate boxes
func (b BBox) Height() int {
	return max(0, b.Y2-b.Y1)
}

// Empty reports whether the box has no area
func (b BBox) Empty() bool {
	return b.Width() == 0 || b.Height() == 0
}

// Rect returns the box as an image.Rectangle
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Clamp limits the box to a width x height frame
func (b BBox) Clamp(width, height int) BBox {
	return BBox{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
}

func (b BBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Box is one raw detector output
type Box struct {
	BBox       BBox
	Confidence float64 // 0.0-1.0
	ClassID    int
}

// Detector finds birds in a single frame.
//
// Implementations filter their output to the configured target class and
// minimum confidence. The order of returned boxes is not guaranteed.
type Detector interface {
	// Load prepares the model; calling it again after success is a no-op
	Load(ctx context.Context) error
	Detect(ctx context.Context, img image.Image) ([]Box, error)
	// ModelName identifies the model in stored confidences
	ModelName() string
}

// IsEdge reports whether the box lies within margin pixels of any frame edge.
// Such birds are usually only partly visible and are not classified.
func IsEdge(b BBox, width, height, margin int) bool {
	return b.X1 < margin ||
		b.Y1 < margin ||
		b.X2 > width-margin ||
		b.Y2 > height-margin
}

// Record is one detection on one sampled frame as produced by the pipeline.
//
// Species fields are nil for edge detections and when classification was
// skipped. A record whose SpeciesLabel is nil is never grouped into a visit.
type Record struct {
	FrameIndex int     // index of the frame in the decoded stream
	Timestamp  float64 // seconds from clip start (index / fps)

	BBox                BBox
	DetectionConfidence float64
	DetectionModel      string

	SpeciesLabel      *string  // classifier label, e.g. "Parus major"
	SpeciesConfidence *float64 // classifier probability
	SpeciesModel      *string

	CropPath string // relative to the output root: "<file_id>/crops/<name>.jpg"
	IsEdge   bool
}

// Classified reports whether the record carries a species prediction
func (r Record) Classified() bool {
	return r.SpeciesLabel != nil && r.SpeciesConfidence != nil
}

// SetSpecies attaches a classifier prediction to the record
func (r *Record) SetSpecies(label string, confidence float64, model string) {
	r.SpeciesLabel = &label
	r.SpeciesConfidence = &confidence
	r.SpeciesModel = &model
}

// Validate checks the record for values the database would reject
func (r *Record) Validate() error {
	if r.FrameIndex < 0 {
		return fmt.Errorf("frame index must be non-negative, got %d", r.FrameIndex)
	}
	if r.DetectionConfidence < 0 || r.DetectionConfidence > 1 {
		return fmt.Errorf("detection confidence must be between 0.0 and 1.0, got %f", r.DetectionConfidence)
	}
	if r.DetectionModel == "" {
		return fmt.Errorf("detection model cannot be empty")
	}
	if r.SpeciesConfidence != nil && (*r.SpeciesConfidence < 0 || *r.SpeciesConfidence > 1) {
		return fmt.Errorf("species confidence must be between 0.0 and 1.0, got %f", *r.SpeciesConfidence)
	}
	return nil
}
