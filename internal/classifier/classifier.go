// Package classifier implements zero-shot species classification of bird
// crops against a fixed list of candidate species.
//
// Text embeddings of the candidates are computed and normalized once when a
// ZeroShot is built. Each Classify call embeds the image, takes cosine
// similarities against the candidates, sharpens them with a temperature and
// applies softmax. The label is always one of the candidates or Unknown.
package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Unknown is the label returned when classification fails
const Unknown = "unknown"

// DefaultTemperature scales cosine similarities before softmax. Thresholds
// around 0.80-0.85 assume this value.
const DefaultTemperature = 100.0

// Result is a single classification
type Result struct {
	Label      string
	Confidence float64 // softmax probability of Label, 0 for Unknown
}

// IsUnknown reports whether classification failed
func (r Result) IsUnknown() bool {
	return r.Label == Unknown
}

// Classifier assigns a species to a bird crop
type Classifier interface {
	// Classify never fails; errors yield a Result with Label Unknown
	Classify(ctx context.Context, img image.Image) Result
	ModelName() string
}

// Embedder produces embeddings in a shared text/image space
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
	ModelName() string
}

// ZeroShot is a Classifier over a fixed candidate list
type ZeroShot struct {
	embedder    Embedder
	labels      []string
	textVecs    [][]float64 // unit vectors, one per label
	temperature float64
	log         logger.Logger
}

type options struct {
	temperature    float64
	promptTemplate string
	log            logger.Logger
}

// Option configures New
type Option func(*options)

// WithTemperature overrides DefaultTemperature
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithPromptTemplate formats each candidate into a text prompt; the template
// must contain a single %s. The default uses the scientific name as is.
func WithPromptTemplate(tmpl string) Option {
	return func(o *options) { o.promptTemplate = tmpl }
}

// WithLogger sets the logger used for classification failures
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New embeds the candidate species and returns a ready classifier. An empty
// species list uses DefaultSpecies.
func New(ctx context.Context, e Embedder, species []string, opts ...Option) (*ZeroShot, error) {
	o := options{temperature: DefaultTemperature, promptTemplate: "%s"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = GetLogger()
	}
	if len(species) == 0 {
		species = DefaultSpecies
	}
	if o.temperature <= 0 {
		return nil, errors.Newf("temperature must be positive, got %v", o.temperature).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	if strings.Count(o.promptTemplate, "%s") != 1 {
		return nil, errors.Newf("prompt template must contain exactly one %%s: %q", o.promptTemplate).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	prompts := make([]string, len(species))
	for i, name := range species {
		prompts[i] = fmt.Sprintf(o.promptTemplate, name)
	}

	start := time.Now()
	raw, err := e.EmbedTexts(ctx, prompts)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to embed species prompts: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model", e.ModelName()).
			Context("species_count", len(species)).
			Build()
	}
	if len(raw) != len(species) {
		return nil, errors.Newf("embedder returned %d vectors for %d prompts", len(raw), len(species)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model", e.ModelName()).
			Build()
	}

	textVecs := make([][]float64, len(raw))
	dim := len(raw[0])
	for i, v := range raw {
		if len(v) != dim || dim == 0 {
			return nil, errors.Newf("inconsistent text embedding dimension for %q", species[i]).
				Component("classifier").
				Category(errors.CategoryModelLoad).
				Build()
		}
		textVecs[i], err = normalize(v)
		if err != nil {
			return nil, errors.New(fmt.Errorf("species %q: %w", species[i], err)).
				Component("classifier").
				Category(errors.CategoryModelLoad).
				Build()
		}
	}

	o.log.Info("zero-shot classifier ready",
		logger.String("model", e.ModelName()),
		logger.Int("species_count", len(species)),
		logger.Duration("elapsed", time.Since(start)))

	return &ZeroShot{
		embedder:    e,
		labels:      append([]string(nil), species...),
		textVecs:    textVecs,
		temperature: o.temperature,
		log:         o.log,
	}, nil
}

// Labels returns the candidate species in order
func (c *ZeroShot) Labels() []string {
	return append([]string(nil), c.labels...)
}

// ModelName identifies the embedding model
func (c *ZeroShot) ModelName() string {
	return c.embedder.ModelName()
}

// Classify returns the most probable candidate for img
func (c *ZeroShot) Classify(ctx context.Context, img image.Image) Result {
	res, err := c.classify(ctx, img)
	if err != nil {
		c.log.Warn("classification failed",
			logger.String("model", c.embedder.ModelName()),
			logger.Error(err))
		return Result{Label: Unknown}
	}
	c.log.Debug("species classified",
		logger.String("species", res.Label),
		logger.Float64("confidence", res.Confidence))
	return res
}

func (c *ZeroShot) classify(ctx context.Context, img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, fmt.Errorf("empty image")
	}
	raw, err := c.embedder.EmbedImage(ctx, img)
	if err != nil {
		return Result{}, err
	}
	if len(raw) != len(c.textVecs[0]) {
		return Result{}, fmt.Errorf("image embedding has dimension %d, want %d", len(raw), len(c.textVecs[0]))
	}
	vec, err := normalize(raw)
	if err != nil {
		return Result{}, err
	}

	logits := make([]float64, len(c.textVecs))
	for i, t := range c.textVecs {
		logits[i] = dot(vec, t) * c.temperature
	}
	probs := softmax(logits)

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return Result{Label: c.labels[best], Confidence: probs[best]}, nil
}

// normalize returns v scaled to unit length
func normalize(v []float32) ([]float64, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("embedding has no usable norm")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// softmax is computed relative to the max logit to avoid overflow
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = max(maxLogit, l)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
