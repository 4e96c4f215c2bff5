// Package observability assembles the Prometheus registry of birdhomie and
// serves it over HTTP.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/birdhomie/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Pipeline   *metrics.PipelineMetrics
	Taxonomy   *metrics.TaxonomyMetrics
	HTTPClient *metrics.HTTPClientMetrics
	Jobs       *metrics.JobMetrics
	Events     *metrics.EventMetrics
}

// NewMetrics creates a registry with process and Go runtime collectors plus
// every application collector.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	taxonomy, err := metrics.NewTaxonomyMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create taxonomy metrics: %w", err)
	}
	httpClient, err := metrics.NewHTTPClientMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client metrics: %w", err)
	}
	jobs, err := metrics.NewJobMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create job metrics: %w", err)
	}
	events, err := metrics.NewEventMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create event metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Pipeline:   pipeline,
		Taxonomy:   taxonomy,
		HTTPClient: httpClient,
		Jobs:       jobs,
		Events:     events,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
