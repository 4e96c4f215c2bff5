package scheduler

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/logger"
)

// InterruptedReason is stored on runs found stale at startup
const InterruptedReason = "Task interrupted by application restart"

// pidExists is replaced in tests
var pidExists = process.PidExistsWithContext

// ReconcileResult counts what Reconcile repaired
type ReconcileResult struct {
	Tasks int64 // running rows marked failed
	Files int64 // processing files returned to pending
}

// CleanupStaleTasks fails running rows whose owner is gone: rows of another
// host, and rows of this host whose pid is no longer alive. Rows of a live
// process on this host are kept.
func (l *TaskLock) CleanupStaleTasks(ctx context.Context) (int64, error) {
	running, err := l.runs.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	var stale []uint
	for i := range running {
		r := &running[i]
		if r.Hostname == l.hostname {
			if r.PID == l.pid {
				continue
			}
			alive, err := pidExists(ctx, int32(r.PID))
			if err == nil && alive {
				continue
			}
		}
		l.log.Warn("cleaned up stale task",
			logger.Int64("task_id", int64(r.ID)),
			logger.String("task_type", r.TaskType),
			logger.String("old_hostname", r.Hostname),
			logger.Int("old_pid", r.PID))
		stale = append(stale, r.ID)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return l.runs.MarkInterrupted(ctx, stale, InterruptedReason)
}

// Reconcile repairs state left behind by a crashed or killed process. It
// runs once at startup, before the scheduler. Files in processing are only
// returned to pending when no live file processor run owns them.
func Reconcile(ctx context.Context, lock *TaskLock, files repository.FileRepository) (ReconcileResult, error) {
	var res ReconcileResult
	var err error
	if res.Tasks, err = lock.CleanupStaleTasks(ctx); err != nil {
		return res, err
	}

	held, err := lock.isRunning(ctx, TaskFileProcessor)
	if err != nil {
		return res, err
	}
	if held {
		lock.log.Info("file processor still running, processing files left as is")
	} else if res.Files, err = files.ResetStaleProcessing(ctx); err != nil {
		return res, err
	}
	if res.Tasks > 0 || res.Files > 0 {
		lock.log.Info("stale state reconciled",
			logger.Int64("tasks", res.Tasks),
			logger.Int64("files", res.Files))
	}
	return res, nil
}

// isRunning reports whether a run of taskType still holds its lock
func (l *TaskLock) isRunning(ctx context.Context, taskType string) (bool, error) {
	running, err := l.runs.ListRunning(ctx)
	if err != nil {
		return false, err
	}
	for i := range running {
		if running[i].TaskType == taskType {
			return true, nil
		}
	}
	return false, nil
}
