package pipeline

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/events"
	"github.com/tphakala/birdhomie/internal/logger"
)

// ProcessPending processes all pending files, oldest first, on up to
// Workers goroutines. Files missing on disk are skipped and stay pending.
// A model load failure stops the batch and is returned; other per-file
// errors are logged and the batch continues. It returns the number of
// files processed successfully.
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	start := time.Now()
	pending, err := p.deps.Files.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	paths := make([]string, 0, len(pending))
	for i := range pending {
		abs := p.resolvePath(pending[i].FilePath)
		if _, err := p.deps.Fs.Stat(abs); err != nil {
			if os.IsNotExist(err) {
				p.log.Warn("file not found",
					logger.Int64("file_id", int64(pending[i].ID)),
					logger.String("file", abs))
				continue
			}
			p.log.Warn("file not accessible",
				logger.Int64("file_id", int64(pending[i].ID)),
				logger.String("file", abs),
				logger.Error(err))
			continue
		}
		paths = append(paths, pending[i].FilePath)
	}
	if len(paths) == 0 {
		return 0, nil
	}

	p.log.Info("processing pending files",
		logger.Int("count", len(paths)),
		logger.Int("workers", p.cfg.Workers))

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, fp := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			ok, err := p.ProcessFile(gctx, fp)
			if err != nil {
				if isBatchFatal(err) {
					return err
				}
				if !errors.Is(err, context.Canceled) {
					p.log.Warn("file skipped", logger.String("file", fp), logger.Error(err))
				}
				return nil
			}
			if ok {
				processed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	n := int(processed.Load())
	p.log.Info("pending files processed",
		logger.Int("processed", n),
		logger.Int("candidates", len(paths)),
		logger.Duration("elapsed", time.Since(start)))
	p.deps.Events.Publish(events.Event{
		Type:           events.BatchFinished,
		Processed:      n,
		ElapsedSeconds: time.Since(start).Seconds(),
	})
	return n, err
}
