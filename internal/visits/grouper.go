// Package visits groups the detections of one clip into per-species visits.
package visits

import (
	"maps"
	"slices"

	"github.com/tphakala/birdhomie/internal/classifier"
	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/logger"
)

// DefaultMinSpeciesConfidence is the grouping threshold
const DefaultMinSpeciesConfidence = 0.85

// Groups maps a species label to its records in input order
type Groups map[string][]detection.Record

// Grouper partitions records by species label
type Grouper struct {
	minConfidence float64
	log           logger.Logger
}

// NewGrouper creates a Grouper. minConfidence is used as given and must
// lie in [0, 1]; 0 groups every classified record.
func NewGrouper(minConfidence float64, log logger.Logger) *Grouper {
	if log == nil {
		log = GetLogger()
	}
	return &Grouper{minConfidence: minConfidence, log: log}
}

// MinConfidence returns the grouping threshold
func (g *Grouper) MinConfidence() float64 {
	return g.minConfidence
}

// Group keeps classified records with species confidence at or above the
// threshold and partitions them by label. Records labelled
// classifier.Unknown are never grouped.
func (g *Grouper) Group(records []detection.Record) Groups {
	groups := make(Groups)
	for i := range records {
		r := &records[i]
		if !r.Classified() || *r.SpeciesLabel == "" || *r.SpeciesLabel == classifier.Unknown {
			continue
		}
		if *r.SpeciesConfidence < g.minConfidence {
			continue
		}
		groups[*r.SpeciesLabel] = append(groups[*r.SpeciesLabel], *r)
	}

	if len(groups) == 0 {
		g.logEmpty(records)
		return groups
	}

	g.log.Info("species groups created",
		logger.Int("species_count", len(groups)),
		logger.Any("species", g.Labels(groups)))
	return groups
}

// logEmpty explains why nothing was grouped
func (g *Grouper) logEmpty(records []detection.Record) {
	var edge, unclassified int
	below := make(map[string]float64)
	for i := range records {
		r := &records[i]
		switch {
		case r.IsEdge:
			edge++
		case !r.Classified():
			unclassified++
		default:
			// keep the highest rejected confidence per label
			if c, ok := below[*r.SpeciesLabel]; !ok || *r.SpeciesConfidence > c {
				below[*r.SpeciesLabel] = *r.SpeciesConfidence
			}
		}
	}
	g.log.Warn("no high confidence detections",
		logger.Int("total_detections", len(records)),
		logger.Int("edge_detections", edge),
		logger.Int("unclassified", unclassified),
		logger.Any("low_confidence_species", below),
		logger.Float64("threshold", g.minConfidence))
}

// Labels returns the group labels sorted, for deterministic iteration
func (g *Grouper) Labels(groups Groups) []string {
	return slices.Sorted(maps.Keys(groups))
}

// Summary describes one visit
type Summary struct {
	// BestIndex is the index of the record with the highest detection
	// confidence, the first one on ties; -1 for an empty group
	BestIndex             int
	MeanSpeciesConfidence float64
	Count                 int
}

// Summarize computes the visit summary of a group
func Summarize(group []detection.Record) Summary {
	if len(group) == 0 {
		return Summary{BestIndex: -1}
	}

	best := 0
	var sum float64
	for i := range group {
		if group[i].DetectionConfidence > group[best].DetectionConfidence {
			best = i
		}
		if group[i].SpeciesConfidence != nil {
			sum += *group[i].SpeciesConfidence
		}
	}
	return Summary{
		BestIndex:             best,
		MeanSpeciesConfidence: sum / float64(len(group)),
		Count:                 len(group),
	}
}
