package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics covers event delivery to sinks (MQTT, notifications).
type EventMetrics struct {
	Published *prometheus.CounterVec
	Dropped   prometheus.Counter
}

// NewEventMetrics creates and registers the event collectors.
func NewEventMetrics(registry prometheus.Registerer) (*EventMetrics, error) {
	m := &EventMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdhomie_events_delivered_total",
			Help: "Events handed to a sink by sink and status.",
		}, []string{"sink", "status"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdhomie_events_dropped_total",
			Help: "Events dropped because the bus queue was full.",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register event metrics: %w", err)
	}
	return m, nil
}

// RecordDelivery counts one delivery attempt.
func (m *EventMetrics) RecordDelivery(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Published.WithLabelValues(sink, status).Inc()
}

// Describe implements prometheus.Collector.
func (m *EventMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Published.Describe(ch)
	ch <- m.Dropped.Desc()
}

// Collect implements prometheus.Collector.
func (m *EventMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Published.Collect(ch)
	ch <- m.Dropped
}
