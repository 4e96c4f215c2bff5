package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TaxonomyMetrics covers species resolution and the iNaturalist breaker.
type TaxonomyMetrics struct {
	Lookups      *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewTaxonomyMetrics creates and registers the taxonomy collectors.
func NewTaxonomyMetrics(registry prometheus.Registerer) (*TaxonomyMetrics, error) {
	m := &TaxonomyMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdhomie_taxonomy_lookups_total",
			Help: "Species resolutions by result (cache_hit, db_hit, api, not_found, error).",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "birdhomie_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"breaker"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register taxonomy metrics: %w", err)
	}
	return m, nil
}

// ObserveLookup counts one resolution.
func (m *TaxonomyMetrics) ObserveLookup(result string) {
	m.Lookups.WithLabelValues(result).Inc()
}

// SetBreakerState records the numeric state of a breaker.
func (m *TaxonomyMetrics) SetBreakerState(breaker string, state int) {
	m.BreakerState.WithLabelValues(breaker).Set(float64(state))
}

// Describe implements prometheus.Collector.
func (m *TaxonomyMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Lookups.Describe(ch)
	m.BreakerState.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *TaxonomyMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Lookups.Collect(ch)
	m.BreakerState.Collect(ch)
}
