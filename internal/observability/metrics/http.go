package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPClientMetrics covers outgoing requests to model servers and iNaturalist.
type HTTPClientMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTPClientMetrics creates and registers the HTTP client collectors.
func NewHTTPClientMetrics(registry prometheus.Registerer) (*HTTPClientMetrics, error) {
	m := &HTTPClientMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdhomie_http_client_requests_total",
			Help: "Outgoing HTTP requests by host, method and status code (0 for transport errors).",
		}, []string{"host", "method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "birdhomie_http_client_request_duration_seconds",
			Help:    "Outgoing HTTP request latency by host.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP client metrics: %w", err)
	}
	return m, nil
}

// Observe has the signature of httpclient.Observer.
func (m *HTTPClientMetrics) Observe(method, host string, status int, elapsed time.Duration, _ error) {
	m.Requests.WithLabelValues(host, method, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(host).Observe(elapsed.Seconds())
}

// Describe implements prometheus.Collector.
func (m *HTTPClientMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *HTTPClientMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Duration.Collect(ch)
}
