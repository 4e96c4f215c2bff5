package taxonomy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/testutil"
)

// fakeSource serves taxa from a map and counts calls
type fakeSource struct {
	mu      sync.Mutex
	byName  map[string]*TaxonInfo
	byID    map[int]*TaxonInfo
	err     error
	lookups int
}

func (f *fakeSource) SearchSpecies(_ context.Context, name string) (*TaxonInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	if info, ok := f.byName[name]; ok {
		c := *info
		return &c, nil
	}
	return nil, ErrNoMatch
}

func (f *fakeSource) FetchTaxon(_ context.Context, id int) (*TaxonInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if info, ok := f.byID[id]; ok {
		c := *info
		return &c, nil
	}
	return nil, ErrNoMatch
}

func strPtr(s string) *string { return &s }

func newFakeSource() *fakeSource {
	tit := &TaxonInfo{TaxonID: 13094, ScientificName: "Parus major", CommonNameEN: strPtr("Great Tit"), CommonNameLocal: strPtr("Kohlmeise")}
	robin := &TaxonInfo{TaxonID: 12716, ScientificName: "Erithacus rubecula", CommonNameEN: strPtr("European Robin")}
	return &fakeSource{
		byName: map[string]*TaxonInfo{"Parus major": tit, "Erithacus rubecula": robin},
		byID:   map[int]*TaxonInfo{13094: tit, 12716: robin},
	}
}

func TestResolveOrCreate(t *testing.T) {
	t.Parallel()

	db := testutil.NewSQLiteDB(t)
	repo := repository.NewTaxonRepository(db)
	src := newFakeSource()
	r := NewResolver(repo, src, time.Hour)

	var results []string
	r.SetObserver(func(result string) { results = append(results, result) })

	id, err := r.ResolveOrCreate(t.Context(), "PARUS_MAJOR")
	require.NoError(t, err)
	assert.Equal(t, 13094, id)

	stored, err := repo.GetByID(t.Context(), 13094)
	require.NoError(t, err)
	assert.Equal(t, "Parus major", stored.ScientificName)
	require.NotNil(t, stored.CommonNameDE)
	assert.Equal(t, "Kohlmeise", *stored.CommonNameDE)

	id, err = r.ResolveOrCreate(t.Context(), "Parus major")
	require.NoError(t, err)
	assert.Equal(t, 13094, id)
	assert.Equal(t, 1, src.lookups)
	assert.Equal(t, []string{ResultAPI, ResultCacheHit}, results)

	// a fresh resolver finds the stored row without the API
	r2 := NewResolver(repo, src, time.Hour)
	id, err = r2.ResolveOrCreate(t.Context(), "parus major")
	require.NoError(t, err)
	assert.Equal(t, 13094, id)
	assert.Equal(t, 1, src.lookups)
}

func TestResolveOrCreateFailures(t *testing.T) {
	t.Parallel()

	repo := repository.NewTaxonRepository(testutil.NewSQLiteDB(t))

	src := newFakeSource()
	r := NewResolver(repo, src, time.Hour)
	_, err := r.ResolveOrCreate(t.Context(), "Unknownus avis")
	require.ErrorIs(t, err, ErrEnrichment)
	require.ErrorIs(t, err, ErrNoMatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryEnrichment))

	_, err = r.ResolveOrCreate(t.Context(), "  ")
	require.ErrorIs(t, err, ErrEnrichment)

	src.err = assert.AnError
	_, err = r.ResolveOrCreate(t.Context(), "Erithacus rubecula")
	require.ErrorIs(t, err, ErrEnrichment)
	require.ErrorIs(t, err, assert.AnError)
}

func TestResolveByIDAndURL(t *testing.T) {
	t.Parallel()

	repo := repository.NewTaxonRepository(testutil.NewSQLiteDB(t))
	src := newFakeSource()
	r := NewResolver(repo, src, time.Hour)

	id, err := r.ResolveURL(t.Context(), "https://www.inaturalist.org/taxa/12716-Erithacus-rubecula")
	require.NoError(t, err)
	assert.Equal(t, 12716, id)

	stored, err := repo.GetByScientificName(t.Context(), "Erithacus rubecula")
	require.NoError(t, err)
	assert.Equal(t, 12716, stored.TaxonID)

	_, err = r.ResolveByID(t.Context(), 12716)
	require.NoError(t, err)
	assert.Equal(t, 1, src.lookups)

	_, err = r.ResolveByID(t.Context(), 999)
	require.ErrorIs(t, err, ErrEnrichment)

	_, err = r.ResolveURL(t.Context(), "https://example.com/birds")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
