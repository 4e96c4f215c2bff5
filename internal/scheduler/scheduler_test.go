package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdhomie/internal/errors"
)

// fakeRunner runs tasks without a database
type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
	times []time.Time
}

func (r *fakeRunner) Run(ctx context.Context, taskType string, fn TaskFunc) (LockResult, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[taskType]++
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
	_, err := fn(ctx)
	return LockResult{Acquired: true}, err
}

func (r *fakeRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func noop(context.Context) (int, error) { return 0, nil }

func TestSchedulerRunsOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		runner := &fakeRunner{}
		s := New(runner)
		require.NoError(t, s.AddJob(Job{Name: "proc", Interval: 5 * time.Minute, Task: noop}))
		require.NoError(t, s.AddJob(Job{Name: "fast", Interval: time.Minute, Task: noop, RunOnStart: true}))

		start := time.Now()
		s.Start(t.Context())
		s.Start(t.Context())
		synctest.Wait()
		assert.Equal(t, 1, runner.count("fast"), "run on start")
		assert.Zero(t, runner.count("proc"))

		time.Sleep(10*time.Minute + time.Second)
		synctest.Wait()
		assert.Equal(t, 2, runner.count("proc"))
		assert.Equal(t, 11, runner.count("fast"))
		assert.Equal(t, start, runner.times[0])

		s.Stop()
		s.Stop()
		time.Sleep(time.Hour)
		assert.Equal(t, 2, runner.count("proc"), "no runs after stop")
	})
}

func TestSchedulerJobErrorsDoNotStopLoop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		runner := &fakeRunner{}
		s := New(runner)
		require.NoError(t, s.AddJob(Job{Name: "bad", Interval: time.Minute, Task: func(context.Context) (int, error) {
			return 0, fmt.Errorf("always fails")
		}}))
		s.Start(t.Context())
		time.Sleep(3*time.Minute + time.Second)
		synctest.Wait()
		assert.Equal(t, 3, runner.count("bad"))
		s.Stop()
	})
}

func TestSchedulerStopCancelsRunningTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	s := New(&fakeRunner{})
	require.NoError(t, s.AddJob(Job{Name: "slow", Interval: time.Hour, RunOnStart: true, Task: func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}}))
	s.Start(context.Background())
	<-started
	s.Stop()
}

func TestSchedulerAddJobValidation(t *testing.T) {
	t.Parallel()

	s := New(&fakeRunner{})
	assert.True(t, errors.IsCategory(s.AddJob(Job{Name: "x", Task: noop}), errors.CategoryValidation))
	assert.True(t, errors.IsCategory(s.AddJob(Job{Interval: time.Second, Task: noop}), errors.CategoryValidation))
	require.NoError(t, s.AddJob(Job{Name: "x", Interval: time.Second, Task: noop}))
	assert.True(t, errors.IsCategory(s.AddJob(Job{Name: "x", Interval: time.Second, Task: noop}), errors.CategoryConflict))

	s.Start(t.Context())
	defer s.Stop()
	assert.True(t, errors.IsCategory(s.AddJob(Job{Name: "y", Interval: time.Second, Task: noop}), errors.CategoryState))
}

func TestRunNow(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := New(runner)
	require.NoError(t, s.AddJob(Job{Name: "proc", Interval: time.Hour, Task: noop}))

	res, err := s.RunNow(t.Context(), "proc")
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Equal(t, 1, runner.count("proc"))

	_, err = s.RunNow(t.Context(), "missing")
	assert.True(t, errors.IsNotFound(err))
}
