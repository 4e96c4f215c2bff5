package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/errors"
)

// VisitRepository persists visits and the detections they own
type VisitRepository interface {
	GetByID(ctx context.Context, id uint) (*entities.Visit, error)
	// GetByFileAndTaxon returns the live visit for (file, taxon)
	GetByFileAndTaxon(ctx context.Context, fileID uint, taxonID int) (*entities.Visit, error)
	ListByFile(ctx context.Context, fileID uint) ([]entities.Visit, error)
	// UpsertWithDetections creates or updates the visit for (file, taxon) and
	// replaces its detections as a whole, in one transaction
	UpsertWithDetections(ctx context.Context, in *VisitUpsert) (*entities.Visit, error)
	// CorrectSpecies records a manual species override
	CorrectSpecies(ctx context.Context, visitID uint, taxonID int) error
	// SetCover picks the detection shown for the visit; it must belong to the visit
	SetCover(ctx context.Context, visitID, detectionID uint) error
}

// VisitUpsert is the input of UpsertWithDetections
type VisitUpsert struct {
	FileID                 uint
	TaxonID                int
	SpeciesConfidence      float64 // mean over the group
	SpeciesConfidenceModel string
	// Detections are inserted in order; VisitID is assigned by the repository
	Detections []entities.Detection
	// BestIndex selects the best and cover detection, -1 for none
	BestIndex int
}

type visitRepository struct {
	db *gorm.DB
}

// NewVisitRepository creates a VisitRepository
func NewVisitRepository(db *gorm.DB) VisitRepository {
	return &visitRepository{db: db}
}

func (r *visitRepository) GetByID(ctx context.Context, id uint) (*entities.Visit, error) {
	var v entities.Visit
	err := r.db.WithContext(ctx).
		Preload("Detections", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&v, id).Error
	if err != nil {
		return nil, notFound(err, ErrVisitNotFound, "get_visit")
	}
	return &v, nil
}

func (r *visitRepository) GetByFileAndTaxon(ctx context.Context, fileID uint, taxonID int) (*entities.Visit, error) {
	v, err := findLiveVisit(r.db.WithContext(ctx), fileID, taxonID)
	if err != nil {
		return nil, notFound(err, ErrVisitNotFound, "get_visit_by_file_taxon")
	}
	return v, nil
}

func findLiveVisit(db *gorm.DB, fileID uint, taxonID int) (*entities.Visit, error) {
	var v entities.Visit
	err := db.Where("file_id = ? AND taxon_id = ? AND deleted_at IS NULL", fileID, taxonID).
		Order("id ASC").
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) ListByFile(ctx context.Context, fileID uint) ([]entities.Visit, error) {
	var visits []entities.Visit
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND deleted_at IS NULL", fileID).
		Order("id ASC").
		Find(&visits).Error
	return visits, dbError(err, "list_visits_by_file")
}

func (r *visitRepository) UpsertWithDetections(ctx context.Context, in *VisitUpsert) (*entities.Visit, error) {
	const op = "upsert_visit"
	var result *entities.Visit

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		visit, err := findLiveVisit(tx, in.FileID, in.TaxonID)
		switch {
		case err == nil:
			if err := tx.Model(visit).Updates(map[string]any{
				"species_confidence":       in.SpeciesConfidence,
				"species_confidence_model": in.SpeciesConfidenceModel,
				"detection_count":          len(in.Detections),
				"best_detection_id":        nil,
				"cover_detection_id":       nil,
			}).Error; err != nil {
				return dbError(err, op)
			}
			if err := tx.Where("visit_id = ?", visit.ID).Delete(&entities.Detection{}).Error; err != nil {
				return dbError(err, op)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			visit = &entities.Visit{
				FileID:                 in.FileID,
				TaxonID:                in.TaxonID,
				SpeciesConfidence:      in.SpeciesConfidence,
				SpeciesConfidenceModel: in.SpeciesConfidenceModel,
				DetectionCount:         len(in.Detections),
			}
			if err := tx.Create(visit).Error; err != nil {
				return dbError(err, op)
			}
		default:
			return dbError(err, op)
		}

		ids := make([]uint, len(in.Detections))
		for i := range in.Detections {
			d := in.Detections[i]
			d.ID = 0
			d.VisitID = visit.ID
			if err := tx.Create(&d).Error; err != nil {
				return dbError(err, op)
			}
			ids[i] = d.ID
		}

		if in.BestIndex >= 0 && in.BestIndex < len(ids) {
			best := ids[in.BestIndex]
			if err := tx.Model(visit).Updates(map[string]any{
				"best_detection_id":  best,
				"cover_detection_id": best,
			}).Error; err != nil {
				return dbError(err, op)
			}
		}

		result = visit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, result.ID)
}

func (r *visitRepository) CorrectSpecies(ctx context.Context, visitID uint, taxonID int) error {
	const op = "correct_visit_species"
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entities.Visit{}).Where("id = ?", visitID).Updates(map[string]any{
		"override_taxon_id": taxonID,
		"corrected_at":      &now,
	})
	if res.Error != nil {
		return dbError(res.Error, op)
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, ErrVisitNotFound, op)
	}
	return nil
}

func (r *visitRepository) SetCover(ctx context.Context, visitID, detectionID uint) error {
	const op = "set_visit_cover"
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&entities.Detection{}).
			Where("id = ? AND visit_id = ?", detectionID, visitID).
			Count(&n).Error; err != nil {
			return dbError(err, op)
		}
		if n == 0 {
			return notFound(gorm.ErrRecordNotFound, ErrDetectionNotInVisit, op)
		}
		err := tx.Model(&entities.Visit{}).Where("id = ?", visitID).
			Update("cover_detection_id", detectionID).Error
		return dbError(err, op)
	})
}
