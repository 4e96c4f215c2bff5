// Package taxonomy resolves classifier labels to iNaturalist taxa and keeps
// the local inaturalist_taxa table in sync.
package taxonomy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// DefaultCacheTTL is how long resolved ids stay in memory
const DefaultCacheTTL = 24 * time.Hour

// Lookup outcomes reported to the observer
const (
	ResultCacheHit = "cache_hit"
	ResultDBHit    = "db_hit"
	ResultAPI      = "api"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Observer receives the outcome of every resolution
type Observer func(result string)

// Resolver maps scientific names and taxon ids to stored taxa, fetching
// unknown ones from iNaturalist. Safe for concurrent use.
type Resolver struct {
	repo     repository.TaxonRepository
	source   Source
	cache    *cache.Cache
	log      logger.Logger
	observer Observer
}

// NewResolver creates a resolver. ttl <= 0 uses DefaultCacheTTL.
func NewResolver(repo repository.TaxonRepository, source Source, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		repo:   repo,
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		log:    GetLogger(),
	}
}

// SetObserver installs fn; call before first use
func (r *Resolver) SetObserver(fn Observer) {
	r.observer = fn
}

func (r *Resolver) observe(result string) {
	if r.observer != nil {
		r.observer(result)
	}
}

// ResolveOrCreate returns the taxon id for a classifier label, creating the
// taxon row from iNaturalist when it is not stored yet. Failures wrap
// ErrEnrichment.
func (r *Resolver) ResolveOrCreate(ctx context.Context, scientificName string) (int, error) {
	name := NormalizeScientificName(scientificName)
	if name == "" {
		r.observe(ResultError)
		return 0, enrichmentError(scientificName, fmt.Errorf("empty species name"))
	}

	key := "name:" + name
	if id, ok := r.cache.Get(key); ok {
		r.observe(ResultCacheHit)
		return id.(int), nil
	}

	stored, err := r.repo.GetByScientificName(ctx, name)
	switch {
	case err == nil:
		r.cache.SetDefault(key, stored.TaxonID)
		r.observe(ResultDBHit)
		return stored.TaxonID, nil
	case !errors.Is(err, repository.ErrTaxonNotFound):
		r.observe(ResultError)
		return 0, enrichmentError(name, err)
	}

	info, err := r.source.SearchSpecies(ctx, name)
	if err != nil {
		return 0, r.fetchFailed(name, err)
	}
	if info.ScientificName == "" {
		info.ScientificName = name
	}
	if err := r.store(ctx, info); err != nil {
		r.observe(ResultError)
		return 0, enrichmentError(name, err)
	}
	r.cache.SetDefault(key, info.TaxonID)
	r.observe(ResultAPI)

	r.log.Info("taxon created",
		logger.Int("taxon_id", info.TaxonID),
		logger.String("scientific_name", info.ScientificName))
	return info.TaxonID, nil
}

// ResolveByID makes sure taxonID is stored, fetching it when needed
func (r *Resolver) ResolveByID(ctx context.Context, taxonID int) (int, error) {
	ref := strconv.Itoa(taxonID)
	if taxonID <= 0 {
		r.observe(ResultError)
		return 0, enrichmentError(ref, fmt.Errorf("invalid taxon id"))
	}

	key := "id:" + ref
	if _, ok := r.cache.Get(key); ok {
		r.observe(ResultCacheHit)
		return taxonID, nil
	}

	_, err := r.repo.GetByID(ctx, taxonID)
	switch {
	case err == nil:
		r.cache.SetDefault(key, taxonID)
		r.observe(ResultDBHit)
		return taxonID, nil
	case !errors.Is(err, repository.ErrTaxonNotFound):
		r.observe(ResultError)
		return 0, enrichmentError(ref, err)
	}

	info, err := r.source.FetchTaxon(ctx, taxonID)
	if err != nil {
		return 0, r.fetchFailed(ref, err)
	}
	if err := r.store(ctx, info); err != nil {
		r.observe(ResultError)
		return 0, enrichmentError(ref, err)
	}
	r.cache.SetDefault(key, info.TaxonID)
	r.observe(ResultAPI)

	r.log.Info("taxon created by id",
		logger.Int("taxon_id", info.TaxonID),
		logger.String("scientific_name", info.ScientificName))
	return info.TaxonID, nil
}

// ResolveURL resolves an iNaturalist taxon URL
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (int, error) {
	id, err := ParseTaxonURL(rawURL)
	if err != nil {
		return 0, err
	}
	return r.ResolveByID(ctx, id)
}

func (r *Resolver) store(ctx context.Context, info *TaxonInfo) error {
	return r.repo.Upsert(ctx, &entities.Taxon{
		TaxonID:          info.TaxonID,
		ScientificName:   info.ScientificName,
		CommonNameEN:     info.CommonNameEN,
		CommonNameDE:     info.CommonNameLocal,
		WikipediaURL:     info.WikipediaURL,
		PhotoURL:         info.PhotoURL,
		PhotoAttribution: info.PhotoAttribution,
	})
}

func (r *Resolver) fetchFailed(ref string, err error) error {
	if errors.Is(err, ErrNoMatch) {
		r.observe(ResultNotFound)
	} else {
		r.observe(ResultError)
	}
	return enrichmentError(ref, err)
}

func enrichmentError(ref string, cause error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrEnrichment, ref, cause)).
		Component("taxonomy").
		Category(errors.CategoryEnrichment).
		Context("species", ref).
		Build()
}
