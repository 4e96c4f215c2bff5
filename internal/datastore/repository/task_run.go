package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
)

// TaskRunRepository stores background task executions. A running row acts
// as the lock for its task type.
type TaskRunRepository interface {
	// CreateIfNoneRunning inserts run unless another run of the same type is
	// running; it reports whether the row was inserted. A unique lock key
	// decides between concurrent callers.
	CreateIfNoneRunning(ctx context.Context, run *entities.TaskRun) (bool, error)
	GetByToken(ctx context.Context, token string) (*entities.TaskRun, error)
	// Complete finishes the running row identified by token
	Complete(ctx context.Context, token string, status entities.TaskStatus, itemsProcessed *int, errMsg *string) error
	ListRunning(ctx context.Context) ([]entities.TaskRun, error)
	// MarkInterrupted fails the given running rows with reason
	MarkInterrupted(ctx context.Context, ids []uint, reason string) (int64, error)
	ListRecent(ctx context.Context, taskType string, limit int) ([]entities.TaskRun, error)
}

type taskRunRepository struct {
	db *gorm.DB
}

// NewTaskRunRepository creates a TaskRunRepository
func NewTaskRunRepository(db *gorm.DB) TaskRunRepository {
	return &taskRunRepository{db: db}
}

func (r *taskRunRepository) CreateIfNoneRunning(ctx context.Context, run *entities.TaskRun) (bool, error) {
	const op = "acquire_task_run"
	db := r.db.WithContext(ctx)

	var n int64
	if err := db.Model(&entities.TaskRun{}).
		Where("task_type = ? AND status = ?", run.TaskType, entities.TaskStatusRunning).
		Count(&n).Error; err != nil {
		return false, dbError(err, op)
	}
	if n > 0 {
		return false, nil
	}
	return insertRunning(db, run, op)
}

// insertRunning inserts run holding the lock key of its type. Losing the
// race to a concurrent acquirer surfaces as a duplicate key and reports false.
func insertRunning(db *gorm.DB, run *entities.TaskRun, op string) (bool, error) {
	key := run.TaskType
	run.LockKey = &key
	run.Status = entities.TaskStatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := db.Create(run).Error; err != nil {
		run.ID = 0
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, dbError(err, op)
	}
	return true, nil
}

func (r *taskRunRepository) GetByToken(ctx context.Context, token string) (*entities.TaskRun, error) {
	var run entities.TaskRun
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&run).Error; err != nil {
		return nil, notFound(err, ErrTaskRunNotFound, "get_task_run")
	}
	return &run, nil
}

func (r *taskRunRepository) Complete(ctx context.Context, token string, status entities.TaskStatus, itemsProcessed *int, errMsg *string) error {
	const op = "complete_task_run"
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run entities.TaskRun
		err := tx.Where("token = ? AND status = ?", token, entities.TaskStatusRunning).First(&run).Error
		if err != nil {
			return notFound(err, ErrTaskRunNotFound, op)
		}
		now := time.Now()
		duration := now.Sub(run.StartedAt).Seconds()
		return dbError(tx.Model(&run).Updates(map[string]any{
			"status":           status,
			"lock_key":         nil,
			"completed_at":     &now,
			"duration_seconds": duration,
			"items_processed":  itemsProcessed,
			"error_message":    errMsg,
		}).Error, op)
	})
}

func (r *taskRunRepository) ListRunning(ctx context.Context) ([]entities.TaskRun, error) {
	var runs []entities.TaskRun
	err := r.db.WithContext(ctx).
		Where("status = ?", entities.TaskStatusRunning).
		Order("started_at ASC").
		Find(&runs).Error
	return runs, dbError(err, "list_running_tasks")
}

func (r *taskRunRepository) MarkInterrupted(ctx context.Context, ids []uint, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entities.TaskRun{}).
		Where("id IN ? AND status = ?", ids, entities.TaskStatusRunning).
		Updates(map[string]any{
			"status":        entities.TaskStatusFailed,
			"lock_key":      nil,
			"completed_at":  &now,
			"error_message": reason,
		})
	return res.RowsAffected, dbError(res.Error, "mark_tasks_interrupted")
}

func (r *taskRunRepository) ListRecent(ctx context.Context, taskType string, limit int) ([]entities.TaskRun, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if taskType != "" {
		q = q.Where("task_type = ?", taskType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []entities.TaskRun
	return runs, dbError(q.Find(&runs).Error, "list_task_runs")
}
