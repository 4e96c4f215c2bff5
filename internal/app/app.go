// Package app assembles the datastore, models, pipeline, task lock, event
// sinks and metrics from Settings. Commands build one App and run the
// parts they need.
package app

import (
	"context"
	"time"

	"github.com/tphakala/birdhomie/internal/classifier"
	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/datastore"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/events"
	"github.com/tphakala/birdhomie/internal/httpclient"
	"github.com/tphakala/birdhomie/internal/inference"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/media"
	"github.com/tphakala/birdhomie/internal/observability"
	"github.com/tphakala/birdhomie/internal/pipeline"
	"github.com/tphakala/birdhomie/internal/resilience"
	"github.com/tphakala/birdhomie/internal/scheduler"
	"github.com/tphakala/birdhomie/internal/taxonomy"
)

const busShutdownTimeout = 5 * time.Second

// App holds the wired components of one process
type App struct {
	Settings *conf.Settings
	Store    datastore.Manager
	Metrics  *observability.Metrics

	Files    repository.FileRepository
	Visits   repository.VisitRepository
	TaskRuns repository.TaskRunRepository

	Resolver  *taxonomy.Resolver
	Models    *inference.Provider
	Processor *pipeline.Processor
	Lock      *scheduler.TaskLock
	Bus       *events.Bus

	mqtt    *events.MQTTSink
	clients []*httpclient.Client
	log     logger.Logger
}

// New opens the datastore and wires every component. The event bus is
// started; Close releases everything New acquired.
func New(ctx context.Context, settings *conf.Settings) (*App, error) {
	a := &App{Settings: settings, log: GetLogger()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error
	settings := a.Settings
	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}

	if a.Store, err = datastore.Open(&settings.Database); err != nil {
		return err
	}
	db := a.Store.DB()
	a.Files = repository.NewFileRepository(db)
	a.Visits = repository.NewVisitRepository(db)
	a.TaskRuns = repository.NewTaskRunRepository(db)

	a.Resolver = a.newResolver(repository.NewTaxonRepository(db))
	a.Models = a.newModels()

	if err = a.newBus(ctx); err != nil {
		return err
	}

	if a.Processor, err = a.newProcessor(); err != nil {
		return err
	}
	a.Lock = scheduler.NewTaskLock(a.TaskRuns, scheduler.WithJobMetrics(a.Metrics.Jobs))
	return nil
}

func (a *App) httpClient(timeout time.Duration) *httpclient.Client {
	c := httpclient.New(&httpclient.Config{DefaultTimeout: timeout})
	c.SetObserver(a.Metrics.HTTPClient.Observe)
	a.clients = append(a.clients, c)
	return c
}

func (a *App) newResolver(taxa repository.TaxonRepository) *taxonomy.Resolver {
	ts := a.Settings.Taxonomy
	client := taxonomy.NewClient(a.httpClient(ts.Timeout), taxonomy.Config{
		BaseURL:   ts.BaseURL,
		Locale:    ts.Locale,
		RateLimit: ts.RateLimit,
		Timeout:   ts.Timeout,
	})
	client.Breaker().SetObserver(func(name string, _, to resilience.State) {
		a.Metrics.Taxonomy.SetBreakerState(name, int(to))
	})
	r := taxonomy.NewResolver(taxa, client, ts.CacheTTL)
	r.SetObserver(a.Metrics.Taxonomy.ObserveLookup)
	return r
}

func (a *App) newModels() *inference.Provider {
	ms := a.Settings.Models
	det := inference.NewYOLODetector(a.httpClient(ms.Detector.Timeout), ms.Detector.Endpoint, ms.Detector.Name,
		inference.WithClassID(ms.Detector.ClassID),
		inference.WithMinConfidence(a.Settings.Processor.MinDetectionConfidence))
	emb := inference.NewCLIPEmbedder(a.httpClient(ms.Classifier.Timeout), ms.Classifier.Endpoint, ms.Classifier.Name)

	var opts []classifier.Option
	if ms.Classifier.Temperature > 0 {
		opts = append(opts, classifier.WithTemperature(ms.Classifier.Temperature))
	}
	p := inference.NewProvider(det, emb, ms.Classifier.Species, opts...)
	p.SetLoadObserver(a.Metrics.Pipeline.RecordModelLoad)
	return p
}

// newBus registers the log and metrics sinks plus MQTT and notifications
// when enabled. A broker that cannot be reached is logged, not fatal.
func (a *App) newBus(ctx context.Context) error {
	a.Bus = events.NewBus(events.DefaultConfig())
	a.Bus.SetDeliveryObserver(a.Metrics.Events.RecordDelivery)
	a.Bus.SetDropObserver(a.Metrics.Events.Dropped.Inc)

	consumers := []events.Consumer{
		events.NewLogSink(nil),
		events.NewMetricsSink(a.Metrics.Pipeline),
	}

	if ms := a.Settings.MQTT; ms.Enabled {
		sink, err := events.NewMQTTSink(events.MQTTConfig{
			Broker:   ms.Broker,
			ClientID: a.Settings.Main.Name,
			Username: ms.Username,
			Password: ms.Password,
			Topic:    ms.Topic,
			Retain:   ms.Retain,
		})
		if err != nil {
			return err
		}
		if err := sink.Connect(ctx); err != nil {
			a.log.Warn("MQTT broker unavailable, publishing after reconnect", logger.Error(err))
		}
		a.mqtt = sink
		consumers = append(consumers, sink)
	}

	if ns := a.Settings.Notify; ns.Enabled {
		n, err := events.NewNotifier(ns.URLs, 10*time.Second)
		if err != nil {
			return err
		}
		consumers = append(consumers, n)
	}

	for _, c := range consumers {
		if err := a.Bus.RegisterConsumer(c); err != nil {
			return err
		}
	}
	a.Bus.Start()
	return nil
}

func (a *App) newProcessor() (*pipeline.Processor, error) {
	ps := a.Settings.Processor
	ffmpeg, err := conf.ValidateToolPath(ps.FFmpegPath)
	if err != nil {
		return nil, err
	}
	ffprobe, err := conf.ValidateToolPath(ps.FFprobePath)
	if err != nil {
		return nil, err
	}
	sampler := media.NewFFmpegSampler(ffmpeg, ffprobe)

	deps := pipeline.Dependencies{
		Files:   a.Files,
		Visits:  a.Visits,
		Models:  a.Models,
		Species: a.Resolver,
		Sampler: sampler,
		Events:  a.Bus,
		Metrics: a.Metrics.Pipeline,
	}
	if ps.Annotate {
		deps.Annotator = media.NewFFmpegAnnotator(sampler)
	}
	return pipeline.New(pipeline.Config{
		DataDir:              a.Settings.Storage.DataDir,
		OutputDir:            a.Settings.Storage.OutputDir,
		FrameSkip:            ps.FrameSkip,
		EdgeMargin:           ps.EdgeMargin,
		MinSpeciesConfidence: ps.MinSpeciesConfidence,
		Workers:              ps.EffectiveWorkers(),
		Annotate:             ps.Annotate,
		JPEGQuality:          ps.JPEGQuality,
	}, deps)
}

// Reconcile clears state left by an interrupted process
func (a *App) Reconcile(ctx context.Context) (scheduler.ReconcileResult, error) {
	return scheduler.Reconcile(ctx, a.Lock, a.Files)
}

// RunBatch processes all pending files under the file processor lock
func (a *App) RunBatch(ctx context.Context) (scheduler.LockResult, error) {
	return a.Lock.Run(ctx, scheduler.TaskFileProcessor, a.Processor.ProcessPending)
}

// ProcessFile processes one file under the file processor lock, so it never
// overlaps a batch run by serve or process. processed is false when the
// file was skipped or failed; res.Acquired is false when the lock is held.
func (a *App) ProcessFile(ctx context.Context, path string) (processed bool, res scheduler.LockResult, err error) {
	return processFileLocked(ctx, a.Lock, a.Processor, path)
}

type singleFileProcessor interface {
	ProcessFile(ctx context.Context, path string) (bool, error)
}

func processFileLocked(ctx context.Context, lock *scheduler.TaskLock, proc singleFileProcessor, path string) (bool, scheduler.LockResult, error) {
	var processed bool
	res, err := lock.Run(ctx, scheduler.TaskFileProcessor, func(ctx context.Context) (int, error) {
		ok, err := proc.ProcessFile(ctx, path)
		if err != nil || !ok {
			return 0, err
		}
		processed = true
		return 1, nil
	})
	return processed, res, err
}

// Close drains the event bus and releases connections
func (a *App) Close() {
	if a.Bus != nil {
		if err := a.Bus.Shutdown(busShutdownTimeout); err != nil {
			a.log.Warn("event bus shutdown incomplete", logger.Error(err))
		}
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	for _, c := range a.clients {
		c.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("failed to close database", logger.Error(err))
		}
	}
}
