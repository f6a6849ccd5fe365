package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the quarantine workflow.
type Metrics struct {
	// Entries created, by failure category
	Entries *prometheus.CounterVec

	// Review decisions, by terminal status
	Reviews *prometheus.CounterVec

	// Time from quarantine to review decision, by terminal status
	ReviewDelay *prometheus.HistogramVec
}

// New creates a Metrics instance with all quarantine metrics registered.
func New() *Metrics {
	return &Metrics{
		Entries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_quarantine_entries_total",
			Help: "Total quarantine entries created by failure category",
		}, []string{"category"}),

		Reviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_quarantine_reviews_total",
			Help: "Total review decisions by terminal status",
		}, []string{"status"}),

		ReviewDelay: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tessera_quarantine_review_delay_seconds",
			Help: "Time between quarantine and review decision",
			// Review is a human workflow; buckets span minutes to a week.
			Buckets: []float64{60, 600, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600},
		}, []string{"status"}),
	}
}

// IncrementEntry records a newly quarantined layer.
func (m *Metrics) IncrementEntry(category string) {
	if m != nil {
		m.Entries.WithLabelValues(category).Inc()
	}
}

// ObserveReview records a review decision and how long the entry waited.
func (m *Metrics) ObserveReview(status string, waited time.Duration) {
	if m != nil {
		m.Reviews.WithLabelValues(status).Inc()
		m.ReviewDelay.WithLabelValues(status).Observe(waited.Seconds())
	}
}
