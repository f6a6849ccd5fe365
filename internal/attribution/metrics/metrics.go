package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attribution module.
type Metrics struct {
	// Evidence method latencies by method
	MethodLatency *prometheus.HistogramVec

	// Resolution outcomes by winning method ("none" when unresolved)
	Resolutions *prometheus.CounterVec
}

// New creates a Metrics instance with all attribution metrics registered.
func New() *Metrics {
	return &Metrics{
		MethodLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tessera_attribution_method_duration_seconds",
			Help:    "Duration of evidence method attempts by method",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method"}),

		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_attribution_resolutions_total",
			Help: "Total attribution resolutions by winning evidence method",
		}, []string{"method"}),
	}
}

// ObserveMethodLatency records the duration of one evidence method attempt.
func (m *Metrics) ObserveMethodLatency(method string, d time.Duration) {
	if m != nil {
		m.MethodLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}

// IncrementResolution records which method won a resolution.
func (m *Metrics) IncrementResolution(method string) {
	if m != nil {
		m.Resolutions.WithLabelValues(method).Inc()
	}
}
