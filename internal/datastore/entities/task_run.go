package entities

import "time"

// TaskStatus is the state of a TaskRun
type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// TaskRun records one execution of a background task. A running row is the
// lock for its task type.
type TaskRun struct {
	ID       uint       `gorm:"primaryKey"`
	Token    string     `gorm:"type:varchar(36);uniqueIndex;not null"`
	TaskType string     `gorm:"type:varchar(64);not null;index:idx_task_runs_type_status"`
	Hostname string     `gorm:"type:varchar(255);not null"`
	PID      int        `gorm:"column:pid;not null"`
	Status   TaskStatus `gorm:"type:varchar(16);not null;index:idx_task_runs_type_status"`
	// LockKey holds the task type while the run is running and is NULL
	// otherwise; its unique index admits one running row per type
	LockKey *string `gorm:"type:varchar(64);uniqueIndex"`

	StartedAt       time.Time `gorm:"not null"`
	CompletedAt     *time.Time
	DurationSeconds *float64
	ItemsProcessed  *int
	ErrorMessage    *string `gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (TaskRun) TableName() string {
	return "task_runs"
}
