package entities

import "time"

// Detection is one bird bounding box on one sampled frame
type Detection struct {
	ID      uint `gorm:"primaryKey"`
	VisitID uint `gorm:"not null;index"`

	FrameNumber    int     `gorm:"not null"`
	FrameTimestamp float64 `gorm:"not null"` // seconds from clip start

	DetectionConfidence      float64 `gorm:"not null"`
	DetectionConfidenceModel string  `gorm:"type:varchar(64);not null"`

	// Species fields are nil for edge detections, which are never classified
	SpeciesConfidence      *float64
	SpeciesConfidenceModel *string `gorm:"type:varchar(64)"`

	BBoxX1 int `gorm:"column:bbox_x1;not null"`
	BBoxY1 int `gorm:"column:bbox_y1;not null"`
	BBoxX2 int `gorm:"column:bbox_x2;not null"`
	BBoxY2 int `gorm:"column:bbox_y2;not null"`

	CropPath        string `gorm:"type:varchar(1024)"`
	IsEdgeDetection bool   `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Detection) TableName() string {
	return "detections"
}
