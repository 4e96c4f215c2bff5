package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Runner runs a task under its lock
type Runner interface {
	Run(ctx context.Context, taskType string, fn TaskFunc) (LockResult, error)
}

// Job is a task run every Interval
type Job struct {
	Name     string
	Interval time.Duration
	Task     TaskFunc
	// RunOnStart triggers the first run immediately instead of after one interval
	RunOnStart bool
}

// Scheduler runs jobs on tickers
type Scheduler struct {
	runner Runner
	log    logger.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler running tasks through runner
func New(runner Runner) *Scheduler {
	return &Scheduler{
		runner: runner,
		log:    GetLogger(),
		jobs:   make(map[string]Job),
	}
}

// AddJob registers job; jobs cannot be added while running
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Name == "" || job.Task == nil {
		return errors.ValidationError("job needs a name and a task")
	}
	if job.Interval <= 0 {
		return errors.ValidationError(fmt.Sprintf("job %s: interval must be positive", job.Name))
	}
	if _, ok := s.jobs[job.Name]; ok {
		return errors.Newf("job %s already registered", job.Name).
			Component("scheduler").
			Category(errors.CategoryConflict).
			Build()
	}
	if s.running {
		return errors.Newf("cannot add job %s to a running scheduler", job.Name).
			Component("scheduler").
			Category(errors.CategoryState).
			Build()
	}
	s.jobs[job.Name] = job
	return nil
}

// Start launches one goroutine per job. It is a no-op when running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, job := range s.jobs {
		s.wg.Go(func() { s.loop(ctx, job) })
		s.log.Info("job scheduled",
			logger.String("job", job.Name),
			logger.Duration("interval", job.Interval))
	}
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// RunNow runs the named job once, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) (LockResult, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return LockResult{}, errors.Newf("unknown job %s", name).
			Component("scheduler").
			Category(errors.CategoryNotFound).
			Build()
	}
	return s.runner.Run(ctx, job.Name, job.Task)
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	if job.RunOnStart {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx, job.Name, job.Task); err != nil && ctx.Err() == nil {
		s.log.Warn("scheduled job failed", logger.String("job", job.Name), logger.Error(err))
	}
}
