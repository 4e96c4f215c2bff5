// Package inference adapts the external model servers to the detection and
// classification interfaces and loads each model at most once per process.
package inference

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/birdhomie/internal/classifier"
	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// loader is implemented by embedders that need a warm start
type loader interface {
	Load(ctx context.Context) error
}

// Provider hands out ready models. The first successful load of each model
// is memoized; a failed load is not, so the next batch tries again.
type Provider struct {
	detector detection.Detector
	embedder classifier.Embedder
	species  []string
	opts     []classifier.Option
	log      logger.Logger

	detMu    sync.Mutex
	detReady bool

	clsMu sync.Mutex
	cls   classifier.Classifier

	observe LoadObserver
}

// LoadObserver is told about every load attempt that reaches a model server
type LoadObserver func(model string, err error)

// NewProvider wraps a detector and an embedder. species and opts are passed
// to classifier.New on first use.
func NewProvider(det detection.Detector, emb classifier.Embedder, species []string, opts ...classifier.Option) *Provider {
	return &Provider{
		detector: det,
		embedder: emb,
		species:  species,
		opts:     opts,
		log:      GetLogger(),
	}
}

// SetLoadObserver installs fn; call before first use
func (p *Provider) SetLoadObserver(fn LoadObserver) {
	p.observe = fn
}

func (p *Provider) observed(model string, err error) {
	if p.observe != nil {
		p.observe(model, err)
	}
}

// Detector returns the loaded detector
func (p *Provider) Detector(ctx context.Context) (detection.Detector, error) {
	p.detMu.Lock()
	defer p.detMu.Unlock()

	if p.detReady {
		return p.detector, nil
	}
	start := time.Now()
	err := p.detector.Load(ctx)
	p.observed(p.detector.ModelName(), err)
	if err != nil {
		return nil, asModelLoad(p.detector.ModelName(), err)
	}
	p.detReady = true
	p.log.Info("detector loaded",
		logger.String("model", p.detector.ModelName()),
		logger.Duration("elapsed", time.Since(start)))
	return p.detector, nil
}

// Classifier returns the zero-shot classifier, embedding the candidate
// species on first use
func (p *Provider) Classifier(ctx context.Context) (classifier.Classifier, error) {
	p.clsMu.Lock()
	defer p.clsMu.Unlock()

	if p.cls != nil {
		return p.cls, nil
	}
	if l, ok := p.embedder.(loader); ok {
		if err := l.Load(ctx); err != nil {
			p.observed(p.embedder.ModelName(), err)
			return nil, asModelLoad(p.embedder.ModelName(), err)
		}
	}
	cls, err := classifier.New(ctx, p.embedder, p.species, p.opts...)
	p.observed(p.embedder.ModelName(), err)
	if err != nil {
		return nil, asModelLoad(p.embedder.ModelName(), err)
	}
	p.cls = cls
	return cls, nil
}

func asModelLoad(model string, err error) error {
	if errors.Is(err, ErrModelLoad) {
		return err
	}
	return modelLoadError(model, "", err)
}
