package serve

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdhomie/internal/api"
	"github.com/tphakala/birdhomie/internal/app"
	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Command runs the scheduler and the management API until interrupted
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process new clips on a schedule and serve the API",
		Long: "Reconciles interrupted work, then runs the file processor every " +
			"processor.intervalminutes and serves the management API with /metrics.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}
	cmd.Flags().StringVar(&settings.API.Listen, "listen", settings.API.Listen, "API listen address")
	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	log := app.GetLogger()

	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Reconcile(ctx)
	if err != nil {
		return err
	}
	if res.Tasks > 0 || res.Files > 0 {
		log.Info("recovered interrupted work",
			logger.Int64("tasks", res.Tasks),
			logger.Int64("files", res.Files))
	}

	// the job is registered even when scheduling is off so the API can trigger it
	sched := scheduler.New(a.Lock)
	if err := sched.AddJob(scheduler.Job{
		Name:       scheduler.TaskFileProcessor,
		Interval:   time.Duration(settings.Processor.IntervalMinutes) * time.Minute,
		Task:       a.Processor.ProcessPending,
		RunOnStart: true,
	}); err != nil {
		return err
	}
	if settings.Scheduler.Enabled {
		sched.Start(ctx)
		defer sched.Stop()
	}

	if !settings.API.Enabled {
		<-ctx.Done()
		return nil
	}

	var pinger api.Pinger
	if sqlDB, err := a.Store.DB().DB(); err == nil {
		pinger = sqlPinger{sqlDB}
	}
	srv := api.NewServer(settings.API.Listen, api.Dependencies{
		Files:    a.Files,
		Visits:   a.Visits,
		TaskRuns: a.TaskRuns,
		Resolver: a.Resolver,
		Tasks:    sched,
		Metrics:  a.Metrics.Handler(),
		DB:       pinger,
		Version:  settings.Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) PingContext(ctx context.Context) error { return p.db.PingContext(ctx) }
