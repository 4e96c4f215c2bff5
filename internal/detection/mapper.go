package detection

import (
	"github.com/tphakala/birdhomie/internal/datastore/entities"
)

// ToEntity converts a Record to a datastore detection for persistence.
// VisitID is left zero; the visit repository assigns it.
// The species label is not stored per detection; the visit carries the taxon.
func ToEntity(r *Record) entities.Detection {
	return entities.Detection{
		FrameNumber:              r.FrameIndex,
		FrameTimestamp:           r.Timestamp,
		DetectionConfidence:      r.DetectionConfidence,
		DetectionConfidenceModel: r.DetectionModel,
		SpeciesConfidence:        r.SpeciesConfidence,
		SpeciesConfidenceModel:   r.SpeciesModel,
		BBoxX1:                   r.BBox.X1,
		BBoxY1:                   r.BBox.Y1,
		BBoxX2:                   r.BBox.X2,
		BBoxY2:                   r.BBox.Y2,
		CropPath:                 r.CropPath,
		IsEdgeDetection:          r.IsEdge,
	}
}

// ToEntities converts records in order
func ToEntities(records []Record) []entities.Detection {
	out := make([]entities.Detection, len(records))
	for i := range records {
		out[i] = ToEntity(&records[i])
	}
	return out
}

// FromEntity converts a stored detection back to a Record. The species
// label is taken from the owning visit and passed in by the caller.
func FromEntity(d *entities.Detection, label string) Record {
	r := Record{
		FrameIndex:          d.FrameNumber,
		Timestamp:           d.FrameTimestamp,
		BBox:                BBox{X1: d.BBoxX1, Y1: d.BBoxY1, X2: d.BBoxX2, Y2: d.BBoxY2},
		DetectionConfidence: d.DetectionConfidence,
		DetectionModel:      d.DetectionConfidenceModel,
		SpeciesConfidence:   d.SpeciesConfidence,
		SpeciesModel:        d.SpeciesConfidenceModel,
		CropPath:            d.CropPath,
		IsEdge:              d.IsEdgeDetection,
	}
	if d.SpeciesConfidence != nil && label != "" {
		r.SpeciesLabel = &label
	}
	return r
}
