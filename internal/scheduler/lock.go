// Package scheduler runs background tasks on an interval. Each task type is
// guarded by a lock row in task_runs so that runs never overlap, also
// across processes sharing the database.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/observability/metrics"
)

// TaskFileProcessor is the task type of the pending file batch
const TaskFileProcessor = "file_processor"

// LockResult is the outcome of TryAcquire. Acquired is false when another
// run of the same type holds the lock; that is not an error.
type LockResult struct {
	Acquired bool
	Token    string
	RunID    uint
}

// TaskFunc is one run of a task; it returns the number of items processed
type TaskFunc func(ctx context.Context) (int, error)

// TaskLock hands out per-type locks backed by task_runs rows
type TaskLock struct {
	runs     repository.TaskRunRepository
	hostname string
	pid      int
	metrics  *metrics.JobMetrics
	log      logger.Logger
}

// LockOption configures a TaskLock
type LockOption func(*TaskLock)

// WithJobMetrics records run outcomes in m
func WithJobMetrics(m *metrics.JobMetrics) LockOption {
	return func(l *TaskLock) { l.metrics = m }
}

// WithOwner overrides the hostname and pid stored on acquired rows
func WithOwner(hostname string, pid int) LockOption {
	return func(l *TaskLock) {
		l.hostname = hostname
		l.pid = pid
	}
}

// NewTaskLock creates a TaskLock owned by this process
func NewTaskLock(runs repository.TaskRunRepository, opts ...LockOption) *TaskLock {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	l := &TaskLock{
		runs:     runs,
		hostname: host,
		pid:      os.Getpid(),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire inserts a running row for taskType unless one exists
func (l *TaskLock) TryAcquire(ctx context.Context, taskType string) (LockResult, error) {
	run := &entities.TaskRun{
		Token:    uuid.NewString(),
		TaskType: taskType,
		Hostname: l.hostname,
		PID:      l.pid,
	}
	created, err := l.runs.CreateIfNoneRunning(ctx, run)
	if err != nil {
		return LockResult{}, errors.New(fmt.Errorf("acquire %s: %w", taskType, err)).
			Component("scheduler").
			Category(errors.CategoryLock).
			Context("task_type", taskType).
			Build()
	}
	if !created {
		return LockResult{}, nil
	}
	l.log.Debug("task lock acquired",
		logger.String("task_type", taskType),
		logger.Int64("run_id", int64(run.ID)))
	return LockResult{Acquired: true, Token: run.Token, RunID: run.ID}, nil
}

// Release completes the run held by res. A nil runErr records success.
func (l *TaskLock) Release(ctx context.Context, res LockResult, items int, runErr error) error {
	if !res.Acquired {
		return nil
	}
	status := entities.TaskStatusSuccess
	var msg *string
	if runErr != nil {
		status = entities.TaskStatusFailed
		m := runErr.Error()
		msg = &m
	}
	// a cancelled run must still give up its lock
	ctx = context.WithoutCancel(ctx)
	if err := l.runs.Complete(ctx, res.Token, status, &items, msg); err != nil {
		return errors.New(fmt.Errorf("release run %d: %w", res.RunID, err)).
			Component("scheduler").
			Category(errors.CategoryLock).
			Build()
	}
	return nil
}

// Run executes fn under the lock for taskType. When the lock is held
// elsewhere fn is not called and the returned result has Acquired false.
// The error is fn's error, or a lock error.
func (l *TaskLock) Run(ctx context.Context, taskType string, fn TaskFunc) (LockResult, error) {
	res, err := l.TryAcquire(ctx, taskType)
	if err != nil {
		return res, err
	}
	if !res.Acquired {
		l.log.Warn("task already running", logger.String("task_type", taskType))
		if l.metrics != nil {
			l.metrics.RecordSkipped(taskType)
		}
		return res, nil
	}

	start := time.Now()
	items, runErr := fn(ctx)
	elapsed := time.Since(start)

	status := string(entities.TaskStatusSuccess)
	if runErr != nil {
		status = string(entities.TaskStatusFailed)
		l.log.Error("task failed",
			logger.String("task_type", taskType),
			logger.Int64("run_id", int64(res.RunID)),
			logger.Error(runErr),
			logger.Duration("elapsed", elapsed))
	} else {
		l.log.Info("task completed",
			logger.String("task_type", taskType),
			logger.Int64("run_id", int64(res.RunID)),
			logger.Int("items_processed", items),
			logger.Duration("elapsed", elapsed))
	}
	if l.metrics != nil {
		l.metrics.RecordRun(taskType, status, elapsed)
	}

	if err := l.Release(ctx, res, items, runErr); err != nil {
		l.log.Error("failed to release task lock", logger.String("task_type", taskType), logger.Error(err))
		return res, errors.Join(runErr, err)
	}
	return res, runErr
}
