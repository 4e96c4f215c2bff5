package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/datastore"
	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr.DB()
}

func createFile(t *testing.T, repo FileRepository, hash string) *entities.File {
	t.Helper()
	f := &entities.File{
		FileHash:   hash,
		FilePath:   "clips/" + hash + ".mp4",
		EventStart: time.Date(2025, 5, 1, 7, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(t.Context(), f))
	require.NotZero(t, f.ID)
	return f
}

func detections(confidences ...float64) []entities.Detection {
	out := make([]entities.Detection, len(confidences))
	for i, c := range confidences {
		conf := c
		model := "bioclip-2"
		out[i] = entities.Detection{
			FrameNumber:              i * 5,
			FrameTimestamp:           float64(i*5) / 25,
			DetectionConfidence:      0.9,
			DetectionConfidenceModel: "yolov8n",
			SpeciesConfidence:        &conf,
			SpeciesConfidenceModel:   &model,
			BBoxX1:                   100,
			BBoxY1:                   100,
			BBoxX2:                   200,
			BBoxY2:                   220,
			CropPath:                 "1/crops/frame.jpg",
		}
	}
	return out
}

func TestFileLifecycle(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewFileRepository(newTestDB(t))

	f := createFile(t, repo, "aaa")
	assert.Equal(t, entities.FileStatusPending, f.Status)

	got, err := repo.GetByHash(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	require.NoError(t, repo.MarkProcessing(ctx, f.ID))
	got, err = repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusProcessing, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	require.NoError(t, repo.MarkSuccess(ctx, f.ID, 12.5, "output/1"))
	got, err = repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusSuccess, got.Status)
	require.NotNil(t, got.DurationSeconds)
	assert.InDelta(t, 12.5, *got.DurationSeconds, 1e-9)
	require.NotNil(t, got.OutputDir)
	assert.Equal(t, "output/1", *got.OutputDir)
	assert.Nil(t, got.ErrorMessage)
}

func TestFileNotFound(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewFileRepository(newTestDB(t))

	_, err := repo.GetByHash(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.True(t, errors.IsNotFound(err))

	err = repo.MarkFailed(ctx, 42, "boom")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileDuplicateHash(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(newTestDB(t))
	createFile(t, repo, "same")

	err := repo.Create(t.Context(), &entities.File{
		FileHash:   "same",
		FilePath:   "clips/copy.mp4",
		EventStart: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestFileRetryRequiresFailed(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewFileRepository(newTestDB(t))
	f := createFile(t, repo, "bbb")

	err := repo.Retry(ctx, f.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	require.NoError(t, repo.MarkFailed(ctx, f.ID, "decode error"))
	require.NoError(t, repo.Retry(ctx, f.ID))

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusPending, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestListPendingOrder(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewFileRepository(newTestDB(t))

	first := createFile(t, repo, "f1")
	second := createFile(t, repo, "f2")
	done := createFile(t, repo, "f3")
	require.NoError(t, repo.MarkSuccess(ctx, done.ID, 1, "output/3"))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	all, err := repo.List(ctx, FileFilter{Status: entities.FileStatusSuccess})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, done.ID, all[0].ID)
}

func TestResetStaleProcessing(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewFileRepository(newTestDB(t))

	a := createFile(t, repo, "s1")
	createFile(t, repo, "s2")
	require.NoError(t, repo.MarkProcessing(ctx, a.ID))

	n, err := repo.ResetStaleProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusPending, got.Status)
}

func TestMergeAndUnignore(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDB(t)
	files := NewFileRepository(db)
	visits := NewVisitRepository(db)

	src := createFile(t, files, "src")
	dst := createFile(t, files, "dst")
	_, err := visits.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: src.ID, TaxonID: 13094, SpeciesConfidence: 0.9,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.9), BestIndex: 0,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, files.Merge(ctx, src.ID, src.ID), ErrSelfMerge)
	assert.ErrorIs(t, files.Merge(ctx, src.ID, 999), ErrFileNotFound)

	require.NoError(t, files.Merge(ctx, src.ID, dst.ID))

	got, err := files.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusIgnored, got.Status)
	require.NotNil(t, got.DuplicateOfFileID)
	assert.Equal(t, dst.ID, *got.DuplicateOfFileID)

	live, err := visits.ListByFile(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, files.Unignore(ctx, src.ID))
	got, err = files.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FileStatusPending, got.Status)
	assert.Nil(t, got.DuplicateOfFileID)
}

func TestUpsertWithDetectionsReplacesChildren(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDB(t)
	f := createFile(t, NewFileRepository(db), "visit")
	repo := NewVisitRepository(db)

	v1, err := repo.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 13094, SpeciesConfidence: 0.9,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.88, 0.95, 0.91), BestIndex: 1,
	})
	require.NoError(t, err)
	require.Len(t, v1.Detections, 3)
	assert.Equal(t, 3, v1.DetectionCount)
	require.NotNil(t, v1.BestDetectionID)
	assert.Equal(t, v1.Detections[1].ID, *v1.BestDetectionID)
	assert.Equal(t, *v1.BestDetectionID, *v1.CoverDetectionID)

	v2, err := repo.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 13094, SpeciesConfidence: 0.87,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.87), BestIndex: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, v1.ID, v2.ID, "same (file, taxon) reuses the visit")
	require.Len(t, v2.Detections, 1)
	assert.Equal(t, 1, v2.DetectionCount)
	assert.InDelta(t, 0.87, v2.SpeciesConfidence, 1e-9)
	assert.Equal(t, v2.Detections[0].ID, *v2.BestDetectionID)

	var orphans int64
	require.NoError(t, db.Model(&entities.Detection{}).Where("visit_id = ?", v1.ID).Count(&orphans).Error)
	assert.Equal(t, int64(1), orphans)

	other, err := repo.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 12716, SpeciesConfidence: 0.9,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.9), BestIndex: -1,
	})
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, other.ID)
	assert.Nil(t, other.BestDetectionID)

	list, err := repo.ListByFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCorrectSpeciesAndCover(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDB(t)
	f := createFile(t, NewFileRepository(db), "cover")
	repo := NewVisitRepository(db)

	v, err := repo.UpsertWithDetections(ctx, &VisitUpsert{
		FileID: f.ID, TaxonID: 13094, SpeciesConfidence: 0.9,
		SpeciesConfidenceModel: "bioclip-2", Detections: detections(0.9, 0.92), BestIndex: 1,
	})
	require.NoError(t, err)

	require.NoError(t, repo.CorrectSpecies(ctx, v.ID, 12716))
	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 12716, got.EffectiveTaxonID())
	assert.NotNil(t, got.CorrectedAt)

	assert.ErrorIs(t, repo.CorrectSpecies(ctx, 999, 1), ErrVisitNotFound)

	require.NoError(t, repo.SetCover(ctx, v.ID, v.Detections[0].ID))
	got, err = repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Detections[0].ID, *got.CoverDetectionID)
	assert.Equal(t, v.Detections[1].ID, *got.BestDetectionID)

	err = repo.SetCover(ctx, v.ID, 9999)
	assert.ErrorIs(t, err, ErrDetectionNotInVisit)
	assert.True(t, errors.IsNotFound(err))
}

func TestTaxonUpsert(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewTaxonRepository(newTestDB(t))

	_, err := repo.GetByScientificName(ctx, "Parus major")
	assert.ErrorIs(t, err, ErrTaxonNotFound)

	en := "Great Tit"
	require.NoError(t, repo.Upsert(ctx, &entities.Taxon{TaxonID: 13094, ScientificName: "Parus major", CommonNameEN: &en}))

	de := "Kohlmeise"
	require.NoError(t, repo.Upsert(ctx, &entities.Taxon{TaxonID: 13094, ScientificName: "Parus major", CommonNameEN: &en, CommonNameDE: &de}))

	got, err := repo.GetByScientificName(ctx, "Parus major")
	require.NoError(t, err)
	assert.Equal(t, 13094, got.TaxonID)
	require.NotNil(t, got.CommonNameDE)
	assert.Equal(t, "Kohlmeise", *got.CommonNameDE)

	byID, err := repo.GetByID(ctx, 13094)
	require.NoError(t, err)
	assert.Equal(t, "Parus major", byID.ScientificName)
}

func TestTaskRunLockRows(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	repo := NewTaskRunRepository(newTestDB(t))

	first := &entities.TaskRun{Token: "t-1", TaskType: "file_processing", Hostname: "host", PID: 100}
	ok, err := repo.CreateIfNoneRunning(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	second := &entities.TaskRun{Token: "t-2", TaskType: "file_processing", Hostname: "host", PID: 101}
	ok, err = repo.CreateIfNoneRunning(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	other := &entities.TaskRun{Token: "t-3", TaskType: "taxonomy_refresh", Hostname: "host", PID: 100}
	ok, err = repo.CreateIfNoneRunning(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)

	items := 4
	require.NoError(t, repo.Complete(ctx, "t-1", entities.TaskStatusSuccess, &items, nil))
	assert.ErrorIs(t, repo.Complete(ctx, "t-1", entities.TaskStatusSuccess, nil, nil), ErrTaskRunNotFound)

	done, err := repo.GetByToken(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusSuccess, done.Status)
	require.NotNil(t, done.ItemsProcessed)
	assert.Equal(t, 4, *done.ItemsProcessed)
	assert.NotNil(t, done.DurationSeconds)

	running, err := repo.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "t-3", running[0].Token)

	n, err := repo.MarkInterrupted(ctx, []uint{running[0].ID}, "Task interrupted by application restart")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recent, err := repo.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestTaskRunLockKeyRejectsConcurrentAcquire(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDB(t)
	repo := NewTaskRunRepository(db)

	winner := &entities.TaskRun{Token: "t-1", TaskType: "file_processing", Hostname: "host-a", PID: 100}
	ok, err := repo.CreateIfNoneRunning(ctx, winner)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, winner.LockKey)

	// a second acquirer that already passed its running-row check
	loser := &entities.TaskRun{Token: "t-2", TaskType: "file_processing", Hostname: "host-b", PID: 200}
	ok, err = insertRunning(db.WithContext(ctx), loser, "acquire_task_run")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, loser.ID)

	running, err := repo.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "t-1", running[0].Token)

	require.NoError(t, repo.Complete(ctx, "t-1", entities.TaskStatusSuccess, nil, nil))
	done, err := repo.GetByToken(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, done.LockKey, "finished runs release the key")

	next := &entities.TaskRun{Token: "t-3", TaskType: "file_processing", Hostname: "host-b", PID: 200}
	ok, err = insertRunning(db.WithContext(ctx), next, "acquire_task_run")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.MarkInterrupted(ctx, []uint{next.ID}, "Task interrupted by application restart")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	interrupted, err := repo.GetByToken(ctx, "t-3")
	require.NoError(t, err)
	assert.Nil(t, interrupted.LockKey)
}
