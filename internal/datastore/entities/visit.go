package entities

import "time"

// Visit aggregates the detections of one species within one file.
// At most one non-deleted visit exists per (file, taxon).
type Visit struct {
	ID      uint `gorm:"primaryKey"`
	FileID  uint `gorm:"not null;index:idx_visits_file_taxon"`
	TaxonID int  `gorm:"not null;index:idx_visits_file_taxon"`

	// OverrideTaxonID holds a manual species correction
	OverrideTaxonID *int

	SpeciesConfidence      float64 `gorm:"not null"`
	SpeciesConfidenceModel string  `gorm:"type:varchar(64);not null"`
	DetectionCount         int     `gorm:"not null"`

	// BestDetectionID and CoverDetectionID point into this visit's own detections
	BestDetectionID  *uint
	CoverDetectionID *uint

	DeletedAt   *time.Time `gorm:"index"`
	CorrectedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Detections []Detection `gorm:"foreignKey:VisitID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Visit) TableName() string {
	return "visits"
}

// EffectiveTaxonID is the corrected taxon when one was set
func (v Visit) EffectiveTaxonID() int {
	if v.OverrideTaxonID != nil {
		return *v.OverrideTaxonID
	}
	return v.TaxonID
}
