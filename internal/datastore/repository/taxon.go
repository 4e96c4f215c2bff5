package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
)

// TaxonRepository caches iNaturalist taxa
type TaxonRepository interface {
	GetByID(ctx context.Context, taxonID int) (*entities.Taxon, error)
	GetByScientificName(ctx context.Context, name string) (*entities.Taxon, error)
	// Upsert inserts the taxon or refreshes its names, links and fetch time
	Upsert(ctx context.Context, taxon *entities.Taxon) error
}

type taxonRepository struct {
	db *gorm.DB
}

// NewTaxonRepository creates a TaxonRepository
func NewTaxonRepository(db *gorm.DB) TaxonRepository {
	return &taxonRepository{db: db}
}

func (r *taxonRepository) GetByID(ctx context.Context, taxonID int) (*entities.Taxon, error) {
	var t entities.Taxon
	if err := r.db.WithContext(ctx).First(&t, "taxon_id = ?", taxonID).Error; err != nil {
		return nil, notFound(err, ErrTaxonNotFound, "get_taxon")
	}
	return &t, nil
}

func (r *taxonRepository) GetByScientificName(ctx context.Context, name string) (*entities.Taxon, error) {
	var t entities.Taxon
	err := r.db.WithContext(ctx).Where("scientific_name = ?", name).First(&t).Error
	if err != nil {
		return nil, notFound(err, ErrTaxonNotFound, "get_taxon_by_name")
	}
	return &t, nil
}

func (r *taxonRepository) Upsert(ctx context.Context, taxon *entities.Taxon) error {
	if taxon.FetchedAt.IsZero() {
		taxon.FetchedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "taxon_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"scientific_name",
			"common_name_en",
			"common_name_de",
			"wikipedia_url",
			"photo_url",
			"photo_attribution",
			"fetched_at",
		}),
	}).Create(taxon).Error
	return dbError(err, "upsert_taxon")
}
