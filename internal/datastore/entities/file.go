package entities

import "time"

// FileStatus is the processing state of a File
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusSuccess    FileStatus = "success"
	FileStatusFailed     FileStatus = "failed"
	FileStatusIgnored    FileStatus = "ignored"
)

// File is one ingested media file. A file with status success is never
// processed again.
type File struct {
	ID         uint       `gorm:"primaryKey"`
	FileHash   string     `gorm:"type:varchar(64);uniqueIndex;not null"`
	FilePath   string     `gorm:"type:varchar(1024);not null"`
	EventStart time.Time  `gorm:"not null"`
	Status     FileStatus `gorm:"type:varchar(16);not null;default:pending;index:idx_files_status_created"`

	DurationSeconds   *float64
	OutputDir         *string `gorm:"type:varchar(1024)"`
	ErrorMessage      *string `gorm:"type:text"`
	DuplicateOfFileID *uint   `gorm:"index"`
	ProcessedAt       *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_files_status_created"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (File) TableName() string {
	return "files"
}
