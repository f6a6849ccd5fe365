package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail. The dropped counter is
// the one to alert on: a sustained non-zero rate means the buffer is sized
// too small for the validation throughput.
type Metrics struct {
	// Events accepted into the buffer, by action
	Emitted *prometheus.CounterVec

	// Events dropped because the buffer was full
	Dropped prometheus.Counter

	// Delivery failures, by sink
	DeliveryFailures *prometheus.CounterVec
}

// New creates a Metrics instance with all audit metrics registered.
func New() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_audit_events_emitted_total",
			Help: "Total audit events accepted into the buffer by action",
		}, []string{"action"}),

		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tessera_audit_events_dropped_total",
			Help: "Total audit events dropped because the buffer was full",
		}),

		DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_audit_delivery_failures_total",
			Help: "Total sink delivery failures by sink",
		}, []string{"sink"}),
	}
}

// IncrementEmitted records an event accepted into the buffer.
func (m *Metrics) IncrementEmitted(action string) {
	if m != nil {
		m.Emitted.WithLabelValues(action).Inc()
	}
}

// IncrementDropped records an event lost to a full buffer.
func (m *Metrics) IncrementDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

// IncrementDeliveryFailure records a sink that could not take an event.
func (m *Metrics) IncrementDeliveryFailure(sink string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(sink).Inc()
	}
}
