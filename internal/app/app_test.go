package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/scheduler"
	tu "github.com/tphakala/birdhomie/internal/testutil"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	s := &conf.Settings{}
	s.Main.Name = "birdhomie-test"
	s.Database.Type = conf.DatabaseSQLite
	s.Database.SQLite.Path = filepath.Join(dir, "birdhomie.db")
	s.Storage.DataDir = filepath.Join(dir, "clips")
	s.Storage.OutputDir = filepath.Join(dir, "output")
	s.Models.Detector.Endpoint = "http://127.0.0.1:1"
	s.Models.Classifier.Endpoint = "http://127.0.0.1:1"
	s.Processor.FFmpegPath = "birdhomie-no-such-ffmpeg"
	s.Processor.FFprobePath = "birdhomie-no-such-ffprobe"
	return s
}

func TestNewFailsWithoutFFmpeg(t *testing.T) {
	t.Parallel()

	a, err := New(t.Context(), testSettings(t))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewRejectsBadNotifyURL(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Notify.Enabled = true
	s.Notify.URLs = []string{"nosuchservice://token@host"}

	_, err := New(t.Context(), s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCloseIsSafeOnPartialApp(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { (&App{log: GetLogger()}).Close() })
}

type stubFileProcessor struct {
	ok    bool
	err   error
	calls int
}

func (p *stubFileProcessor) ProcessFile(context.Context, string) (bool, error) {
	p.calls++
	return p.ok, p.err
}

func TestProcessFileTakesFileProcessorLock(t *testing.T) {
	t.Parallel()

	runs := repository.NewTaskRunRepository(tu.NewSQLiteDB(t))
	lock := scheduler.NewTaskLock(runs)
	proc := &stubFileProcessor{ok: true}

	processed, res, err := processFileLocked(t.Context(), lock, proc, "clip.mp4")
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.True(t, processed)

	run, err := runs.GetByToken(t.Context(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TaskFileProcessor, run.TaskType)
	require.NotNil(t, run.ItemsProcessed)
	assert.Equal(t, 1, *run.ItemsProcessed)

	// a batch holding the lock keeps the single file from running
	held, err := lock.TryAcquire(t.Context(), scheduler.TaskFileProcessor)
	require.NoError(t, err)
	require.True(t, held.Acquired)

	processed, res, err = processFileLocked(t.Context(), lock, proc, "clip.mp4")
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.False(t, processed)
	assert.Equal(t, 1, proc.calls)

	require.NoError(t, lock.Release(t.Context(), held, 0, nil))
}

func TestProcessFileLockedReportsSkipAndFailure(t *testing.T) {
	t.Parallel()

	lock := scheduler.NewTaskLock(repository.NewTaskRunRepository(tu.NewSQLiteDB(t)))

	processed, res, err := processFileLocked(t.Context(), lock, &stubFileProcessor{}, "done.mp4")
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.False(t, processed)

	boom := errors.NewStd("decode failed")
	processed, _, err = processFileLocked(t.Context(), lock, &stubFileProcessor{err: boom}, "bad.mp4")
	require.ErrorIs(t, err, boom)
	assert.False(t, processed)
}
