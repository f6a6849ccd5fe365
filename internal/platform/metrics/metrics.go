package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics. Module-specific metrics
// live next to their modules.
type Metrics struct {
	ValidationRequests prometheus.Counter
	BatchRequests      prometheus.Counter
}

// New creates and registers all process-level Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ValidationRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tessera_validation_requests_total",
			Help: "Total number of single-layer validation requests received",
		}),
		BatchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tessera_batch_requests_total",
			Help: "Total number of batch validation requests received",
		}),
	}
}

// IncrementValidationRequests increments the validation request counter by 1.
func (m *Metrics) IncrementValidationRequests() {
	if m == nil {
		return
	}
	m.ValidationRequests.Inc()
}

// IncrementBatchRequests increments the batch request counter by 1.
func (m *Metrics) IncrementBatchRequests() {
	if m == nil {
		return
	}
	m.BatchRequests.Inc()
}
