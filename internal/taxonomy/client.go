package taxonomy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/httpclient"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/resilience"
)

// DefaultBaseURL is the public iNaturalist API
const DefaultBaseURL = "https://api.inaturalist.org/v1"

// ErrEnrichment indicates a species could not be resolved to a taxon
var ErrEnrichment = errors.NewStd("species enrichment failed")

// ErrNoMatch is returned by the client when iNaturalist has no result
var ErrNoMatch = errors.NewStd("no matching taxon")

// Config configures the iNaturalist client
type Config struct {
	BaseURL string
	// Locale of the second common name
	Locale string
	// RateLimit is the minimum spacing between requests
	RateLimit time.Duration
	// Timeout bounds each request
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Locale:    "de",
		RateLimit: 500 * time.Millisecond,
		Timeout:   10 * time.Second,
		Retry:     resilience.DefaultRetryConfig(),
		Breaker:   resilience.DefaultBreakerConfig(),
	}
}

// TaxonInfo is a species as reported by iNaturalist
type TaxonInfo struct {
	TaxonID          int
	ScientificName   string
	CommonNameEN     *string
	CommonNameLocal  *string // common name in Config.Locale
	WikipediaURL     *string
	PhotoURL         *string
	PhotoAttribution *string
}

// Source looks up taxa
type Source interface {
	SearchSpecies(ctx context.Context, scientificName string) (*TaxonInfo, error)
	FetchTaxon(ctx context.Context, taxonID int) (*TaxonInfo, error)
}

// Client queries the iNaturalist taxa API with pacing, retries and a
// circuit breaker
type Client struct {
	http    *httpclient.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	log     logger.Logger
}

// NewClient creates a client. Zero config fields take their defaults.
func NewClient(hc *httpclient.Client, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker = def.Breaker
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		http:    hc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		breaker: resilience.NewCircuitBreaker("inaturalist", cfg.Breaker),
		log:     GetLogger(),
	}
}

// Breaker exposes the circuit breaker, e.g. to observe its state
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// SearchSpecies finds the best species match for scientificName.
// ErrNoMatch is returned when iNaturalist knows no such species.
func (c *Client) SearchSpecies(ctx context.Context, scientificName string) (*TaxonInfo, error) {
	q := url.Values{}
	q.Set("q", scientificName)
	q.Set("rank", "species")
	q.Set("per_page", "1")
	return c.lookup(ctx, "/taxa", q, "species", scientificName)
}

// FetchTaxon loads a taxon by its iNaturalist id
func (c *Client) FetchTaxon(ctx context.Context, taxonID int) (*TaxonInfo, error) {
	return c.lookup(ctx, "/taxa/"+strconv.Itoa(taxonID), url.Values{}, "taxon_id", strconv.Itoa(taxonID))
}

func (c *Client) lookup(ctx context.Context, path string, q url.Values, key, value string) (*TaxonInfo, error) {
	c.log.Info("fetching iNaturalist taxon", logger.String(key, value))

	obj, err := c.get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	info, err := firstResult(obj)
	if err != nil {
		c.log.Warn("taxon not found on iNaturalist", logger.String(key, value))
		return nil, err
	}

	if c.cfg.Locale != "" {
		lq := url.Values{}
		for k, v := range q {
			lq[k] = v
		}
		lq.Set("locale", c.cfg.Locale)
		// the localized name is optional
		if lobj, err := c.get(ctx, path, lq); err == nil {
			if local, err := firstResult(lobj); err == nil {
				info.CommonNameLocal = local.CommonNameEN
			}
		} else {
			c.log.Debug("localized name lookup failed",
				logger.String(key, value),
				logger.String("locale", c.cfg.Locale),
				logger.Error(err))
		}
	}
	return info, nil
}

// get performs one paced, retried, breaker-guarded GET
func (c *Client) get(ctx context.Context, path string, q url.Values) (*jason.Object, error) {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var obj *jason.Object
	err := resilience.Retry(ctx, c.cfg.Retry, "inaturalist", func(ctx context.Context) error {
		return c.breaker.Call(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			var err error
			obj, err = c.http.GetJSON(reqCtx, u)
			return err
		})
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("iNaturalist request failed: %w", err)).
			Component("taxonomy").
			Category(errors.CategoryEnrichment).
			Context("url", u).
			Build()
	}
	return obj, nil
}

func firstResult(obj *jason.Object) (*TaxonInfo, error) {
	results, err := obj.GetObjectArray("results")
	if err != nil || len(results) == 0 {
		return nil, ErrNoMatch
	}
	t := results[0]
	id, err := t.GetInt64("id")
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: result has no id", ErrNoMatch)
	}
	name, _ := t.GetString("name")

	info := &TaxonInfo{
		TaxonID:        int(id),
		ScientificName: name,
		CommonNameEN:   optString(t, "preferred_common_name"),
		WikipediaURL:   optString(t, "wikipedia_url"),
	}
	if photo, err := t.GetObject("default_photo"); err == nil {
		info.PhotoURL = optString(photo, "medium_url")
		info.PhotoAttribution = optString(photo, "attribution")
	}
	return info, nil
}

// optString returns nil for missing, null or empty values
func optString(obj *jason.Object, key string) *string {
	s, err := obj.GetString(key)
	if err != nil || s == "" {
		return nil
	}
	return &s
}
