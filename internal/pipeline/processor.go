// Package pipeline turns media files into detections and visits: it hashes
// each file, samples frames, runs detection and classification, groups the
// results per species and persists them.
package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/afero"

	"github.com/tphakala/birdhomie/internal/classifier"
	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/events"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/media"
	"github.com/tphakala/birdhomie/internal/observability/metrics"
	"github.com/tphakala/birdhomie/internal/visits"
)

const (
	DefaultFrameSkip  = 5
	DefaultEdgeMargin = 20
	maxWorkers        = 8
)

// ModelProvider hands out loaded models
type ModelProvider interface {
	Detector(ctx context.Context) (detection.Detector, error)
	Classifier(ctx context.Context) (classifier.Classifier, error)
}

// SpeciesResolver maps a scientific name to a taxon id, creating the taxon
// when it is not known yet
type SpeciesResolver interface {
	ResolveOrCreate(ctx context.Context, scientificName string) (int, error)
}

// Config holds processing parameters. Zero values take the defaults.
type Config struct {
	DataDir              string // base for relative file paths
	OutputDir            string // per-file outputs go to OutputDir/<file id>
	FrameSkip            int
	EdgeMargin           int
	MinSpeciesConfidence float64 // used as given, 0 keeps every classified record
	Workers              int // 0 picks from the CPU count
	Annotate             bool
	JPEGQuality          int
}

// Dependencies are the collaborators of a Processor. Annotator, Events,
// Metrics and Logger are optional.
type Dependencies struct {
	Files     repository.FileRepository
	Visits    repository.VisitRepository
	Models    ModelProvider
	Species   SpeciesResolver
	Sampler   media.Sampler
	Annotator media.Annotator
	Fs        afero.Fs
	Events    events.Publisher
	Metrics   *metrics.PipelineMetrics
	Logger    logger.Logger
}

// Processor runs the per-file pipeline
type Processor struct {
	cfg     Config
	deps    Dependencies
	grouper *visits.Grouper
	log     logger.Logger
}

// New validates cfg and deps and returns a Processor
func New(cfg Config, deps Dependencies) (*Processor, error) {
	if deps.Files == nil || deps.Visits == nil || deps.Models == nil || deps.Species == nil || deps.Sampler == nil {
		return nil, errors.Newf("pipeline requires file and visit repositories, models, species resolver and sampler").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.OutputDir == "" {
		return nil, errors.ValidationError("pipeline output directory is required")
	}
	if cfg.MinSpeciesConfidence < 0 || cfg.MinSpeciesConfidence > 1 {
		return nil, errors.ValidationError("pipeline species confidence threshold must be between 0 and 1")
	}
	if cfg.FrameSkip <= 0 {
		cfg.FrameSkip = DefaultFrameSkip
	}
	if cfg.EdgeMargin <= 0 {
		cfg.EdgeMargin = DefaultEdgeMargin
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = GetLogger()
	}
	return &Processor{
		cfg:     cfg,
		deps:    deps,
		grouper: visits.NewGrouper(cfg.MinSpeciesConfidence, deps.Logger),
		log:     deps.Logger,
	}, nil
}

// defaultWorkers uses the physical core count, between 1 and maxWorkers
func defaultWorkers() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = 1
	}
	return min(n, maxWorkers)
}

// Workers returns the batch concurrency
func (p *Processor) Workers() int {
	return p.cfg.Workers
}

// resolvePath makes stored relative paths absolute against DataDir
func (p *Processor) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || p.cfg.DataDir == "" {
		return filePath
	}
	return filepath.Join(p.cfg.DataDir, filePath)
}

// outcome summarizes one processed file for events
type outcome struct {
	frames       int
	records      []detection.Record
	visits       int
	duration     float64
	edge         int
	classified   int
	unclassified int
}

// ProcessFile runs the pipeline for one file. It returns true when the file
// was processed successfully and false when it was skipped (already
// processed) or failed. Per-file failures are recorded on the file row and
// do not produce an error; an error is returned for a missing file, a
// model load failure, a persistence failure before processing started and
// cancellation.
func (p *Processor) ProcessFile(ctx context.Context, filePath string) (bool, error) {
	start := time.Now()
	abs := p.resolvePath(filePath)

	info, err := p.deps.Fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, missingFile(abs, err)
		}
		return false, errors.FileError(err, abs)
	}

	hash, err := hashFile(p.deps.Fs, abs)
	if err != nil {
		return false, err
	}

	existing, err := p.deps.Files.GetByHash(ctx, hash)
	if err != nil && !errors.IsNotFound(err) {
		return false, err
	}
	if existing != nil && existing.Status == entities.FileStatusSuccess {
		p.log.Info("file already processed",
			logger.String("file", abs),
			logger.Int64("file_id", int64(existing.ID)))
		p.deps.Events.Publish(events.Event{Type: events.FileSkipped, FileID: existing.ID, Path: abs, Reason: "already processed"})
		return false, nil
	}

	// models are acquired before the row changes so a load failure leaves it untouched
	det, err := p.deps.Models.Detector(ctx)
	if err != nil {
		return false, err
	}
	cls, err := p.deps.Models.Classifier(ctx)
	if err != nil {
		return false, err
	}

	var fileID uint
	if existing != nil {
		fileID = existing.ID
		if err := p.deps.Files.MarkProcessing(ctx, fileID); err != nil {
			return false, err
		}
	} else {
		f := &entities.File{
			FileHash:   hash,
			FilePath:   filePath,
			EventStart: info.ModTime(),
			Status:     entities.FileStatusProcessing,
		}
		if err := p.deps.Files.Create(ctx, f); err != nil {
			return false, err
		}
		fileID = f.ID
	}

	log := p.log.With(logger.Int64("file_id", int64(fileID)), logger.String("file", abs))
	log.Info("processing file")
	p.deps.Events.Publish(events.Event{Type: events.FileStarted, FileID: fileID, Path: abs})
	if m := p.deps.Metrics; m != nil {
		m.InFlight.Inc()
		defer m.InFlight.Dec()
	}

	out, err := p.process(ctx, log, fileID, abs, det, cls)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			// left in processing; startup reconciliation returns it to pending
			return false, ctx.Err()
		}
		log.Error("file processing failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		if markErr := p.deps.Files.MarkFailed(ctx, fileID, err.Error()); markErr != nil {
			log.Error("failed to record file failure", logger.Error(markErr))
		}
		p.deps.Events.Publish(events.Event{
			Type:           events.FileFailed,
			FileID:         fileID,
			Path:           abs,
			ElapsedSeconds: elapsed.Seconds(),
			Error:          err.Error(),
			ErrorCategory:  string(errors.CategoryOf(err)),
		})
		return false, nil
	}

	if err := p.deps.Files.MarkSuccess(ctx, fileID, out.duration, p.outputRef(fileID)); err != nil {
		log.Error("failed to record file success", logger.Error(err))
		p.deps.Events.Publish(events.Event{
			Type:           events.FileFailed,
			FileID:         fileID,
			Path:           abs,
			ElapsedSeconds: elapsed.Seconds(),
			Error:          err.Error(),
			ErrorCategory:  string(errors.CategoryOf(err)),
		})
		return false, nil
	}

	log.Info("file processed successfully",
		logger.Float64("duration", out.duration),
		logger.Int("detections", len(out.records)),
		logger.Int("visits", out.visits),
		logger.Duration("elapsed", elapsed))
	p.deps.Events.Publish(events.Event{
		Type:            events.FileSucceeded,
		FileID:          fileID,
		Path:            abs,
		DurationSeconds: out.duration,
		ElapsedSeconds:  elapsed.Seconds(),
		Frames:          out.frames,
		Detections:      len(out.records),
		EdgeDetections:  out.edge,
		Classified:      out.classified,
		Unclassified:    out.unclassified,
		Visits:          out.visits,
	})
	return true, nil
}

// outputDir is where crops and the annotated clip of a file are written
func (p *Processor) outputDir(fileID uint) string {
	return filepath.Join(p.cfg.OutputDir, strconv.FormatUint(uint64(fileID), 10))
}

// outputRef is the output location stored on the file row, relative to the
// parent of the output root, e.g. "output/7"
func (p *Processor) outputRef(fileID uint) string {
	return path.Join(filepath.Base(p.cfg.OutputDir), strconv.FormatUint(uint64(fileID), 10))
}

func (p *Processor) process(ctx context.Context, log logger.Logger, fileID uint, abs string, det detection.Detector, cls classifier.Classifier) (*outcome, error) {
	outDir := p.outputDir(fileID)
	if err := p.deps.Fs.MkdirAll(filepath.Join(outDir, "crops"), 0o755); err != nil {
		return nil, errors.FileError(err, outDir)
	}

	out, annotations, err := p.detect(ctx, log, fileID, abs, det, cls)
	if err != nil {
		return nil, err
	}

	// every processed video gets annotated.mp4, also without detections
	if p.cfg.Annotate && p.deps.Annotator != nil && !media.IsStillImage(abs) {
		dst := filepath.Join(outDir, media.AnnotatedVideoName)
		if err := p.deps.Annotator.Annotate(ctx, abs, dst, annotations); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("annotated video creation failed", logger.Error(err))
		}
	}

	n, err := p.storeVisits(ctx, log, fileID, out.records, cls.ModelName())
	if err != nil {
		return nil, err
	}
	out.visits = n
	return out, nil
}

// storeVisits groups records by species and upserts one visit per taxon
func (p *Processor) storeVisits(ctx context.Context, log logger.Logger, fileID uint, records []detection.Record, model string) (int, error) {
	groups := p.grouper.Group(records)
	stored := 0
	for _, label := range p.grouper.Labels(groups) {
		group := groups[label]
		taxonID, err := p.deps.Species.ResolveOrCreate(ctx, label)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			log.Warn("taxon resolution failed, skipping species",
				logger.String("species", label),
				logger.Int("detections", len(group)),
				logger.Error(err))
			p.deps.Events.Publish(events.Event{
				Type:    events.GroupSkipped,
				FileID:  fileID,
				Species: label,
				Reason:  err.Error(),
			})
			continue
		}

		summary := visits.Summarize(group)
		visit, err := p.deps.Visits.UpsertWithDetections(ctx, &repository.VisitUpsert{
			FileID:                 fileID,
			TaxonID:                taxonID,
			SpeciesConfidence:      summary.MeanSpeciesConfidence,
			SpeciesConfidenceModel: model,
			Detections:             detection.ToEntities(group),
			BestIndex:              summary.BestIndex,
		})
		if err != nil {
			return stored, err
		}
		stored++
		log.Info("visit stored",
			logger.Int64("visit_id", int64(visit.ID)),
			logger.String("species", label),
			logger.Int("taxon_id", taxonID),
			logger.Int("detection_count", summary.Count))
		p.deps.Events.Publish(events.Event{
			Type:       events.VisitUpserted,
			FileID:     fileID,
			VisitID:    visit.ID,
			TaxonID:    taxonID,
			Species:    label,
			Detections: summary.Count,
		})
	}
	return stored, nil
}
