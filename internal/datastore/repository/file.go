package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
)

// FileRepository persists ingested files and their processing state
type FileRepository interface {
	GetByID(ctx context.Context, id uint) (*entities.File, error)
	GetByHash(ctx context.Context, hash string) (*entities.File, error)
	// Create inserts a new file; ID is set on success
	Create(ctx context.Context, file *entities.File) error
	MarkProcessing(ctx context.Context, id uint) error
	MarkSuccess(ctx context.Context, id uint, durationSeconds float64, outputDir string) error
	MarkFailed(ctx context.Context, id uint, message string) error
	// ListPending returns pending files, oldest first
	ListPending(ctx context.Context) ([]entities.File, error)
	List(ctx context.Context, filter FileFilter) ([]entities.File, error)
	// ResetStaleProcessing returns files stuck in processing to pending
	ResetStaleProcessing(ctx context.Context) (int64, error)
	// Retry returns a failed file to pending
	Retry(ctx context.Context, id uint) error
	// Merge marks source as a duplicate of target and soft-deletes its visits
	Merge(ctx context.Context, sourceID, targetID uint) error
	// Unignore returns an ignored file to pending
	Unignore(ctx context.Context, id uint) error
}

// FileFilter narrows List
type FileFilter struct {
	Status entities.FileStatus // empty matches all
	Limit  int
	Offset int
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository creates a FileRepository
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) GetByID(ctx context.Context, id uint) (*entities.File, error) {
	var f entities.File
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, notFound(err, ErrFileNotFound, "get_file")
	}
	return &f, nil
}

func (r *fileRepository) GetByHash(ctx context.Context, hash string) (*entities.File, error) {
	var f entities.File
	err := r.db.WithContext(ctx).Where("file_hash = ?", hash).First(&f).Error
	if err != nil {
		return nil, notFound(err, ErrFileNotFound, "get_file_by_hash")
	}
	return &f, nil
}

func (r *fileRepository) Create(ctx context.Context, file *entities.File) error {
	if file.Status == "" {
		file.Status = entities.FileStatusPending
	}
	return dbError(r.db.WithContext(ctx).Create(file).Error, "create_file")
}

func (r *fileRepository) MarkProcessing(ctx context.Context, id uint) error {
	now := time.Now()
	return r.update(ctx, id, "mark_processing", map[string]any{
		"status":        entities.FileStatusProcessing,
		"processed_at":  &now,
		"error_message": nil,
	})
}

func (r *fileRepository) MarkSuccess(ctx context.Context, id uint, durationSeconds float64, outputDir string) error {
	now := time.Now()
	return r.update(ctx, id, "mark_success", map[string]any{
		"status":           entities.FileStatusSuccess,
		"duration_seconds": durationSeconds,
		"output_dir":       outputDir,
		"error_message":    nil,
		"processed_at":     &now,
	})
}

func (r *fileRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	return r.update(ctx, id, "mark_failed", map[string]any{
		"status":        entities.FileStatusFailed,
		"error_message": message,
	})
}

func (r *fileRepository) update(ctx context.Context, id uint, op string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&entities.File{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return dbError(res.Error, op)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when nothing changed
	var n int64
	if err := r.db.WithContext(ctx).Model(&entities.File{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return dbError(err, op)
	}
	if n == 0 {
		return notFound(gorm.ErrRecordNotFound, ErrFileNotFound, op)
	}
	return nil
}

func (r *fileRepository) ListPending(ctx context.Context) ([]entities.File, error) {
	var files []entities.File
	err := r.db.WithContext(ctx).
		Where("status = ?", entities.FileStatusPending).
		Order("created_at ASC, id ASC").
		Find(&files).Error
	return files, dbError(err, "list_pending_files")
}

func (r *fileRepository) List(ctx context.Context, filter FileFilter) ([]entities.File, error) {
	q := r.db.WithContext(ctx).Order("event_start DESC, id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var files []entities.File
	return files, dbError(q.Find(&files).Error, "list_files")
}

func (r *fileRepository) ResetStaleProcessing(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entities.File{}).
		Where("status = ?", entities.FileStatusProcessing).
		Update("status", entities.FileStatusPending)
	return res.RowsAffected, dbError(res.Error, "reset_stale_processing")
}

func (r *fileRepository) Retry(ctx context.Context, id uint) error {
	return r.transition(ctx, id, "retry_file", entities.FileStatusFailed, map[string]any{
		"status":        entities.FileStatusPending,
		"error_message": nil,
	})
}

func (r *fileRepository) Unignore(ctx context.Context, id uint) error {
	return r.transition(ctx, id, "unignore_file", entities.FileStatusIgnored, map[string]any{
		"status":               entities.FileStatusPending,
		"duplicate_of_file_id": nil,
	})
}

// transition applies values only when the file is currently in from
func (r *fileRepository) transition(ctx context.Context, id uint, op string, from entities.FileStatus, values map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f entities.File
		if err := tx.First(&f, id).Error; err != nil {
			return notFound(err, ErrFileNotFound, op)
		}
		if f.Status != from {
			return invalid(ErrInvalidTransition, op, "file_id", id, "status", string(f.Status))
		}
		return dbError(tx.Model(&entities.File{}).Where("id = ?", id).Updates(values).Error, op)
	})
}

func (r *fileRepository) Merge(ctx context.Context, sourceID, targetID uint) error {
	const op = "merge_file"
	if sourceID == targetID {
		return invalid(ErrSelfMerge, op, "file_id", sourceID)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&entities.File{}).Where("id IN ?", []uint{sourceID, targetID}).Count(&n).Error; err != nil {
			return dbError(err, op)
		}
		if n != 2 {
			return notFound(gorm.ErrRecordNotFound, ErrFileNotFound, op)
		}

		if err := tx.Model(&entities.File{}).Where("id = ?", sourceID).Updates(map[string]any{
			"status":               entities.FileStatusIgnored,
			"duplicate_of_file_id": targetID,
		}).Error; err != nil {
			return dbError(err, op)
		}

		now := time.Now()
		err := tx.Model(&entities.Visit{}).
			Where("file_id = ? AND deleted_at IS NULL", sourceID).
			Update("deleted_at", &now).Error
		return dbError(err, op)
	})
}
