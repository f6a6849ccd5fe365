package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the validation pipeline.
type Metrics struct {
	// Completed runs, by verdict
	Runs *prometheus.CounterVec

	// Wall time spent per pipeline stage
	StageDuration *prometheus.HistogramVec

	// Layers submitted per batch
	BatchSize prometheus.Histogram

	// Layers skipped during batch resume because a run already existed
	Resumed prometheus.Counter
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_pipeline_runs_total",
			Help: "Total completed validation runs by verdict",
		}, []string{"verdict"}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tessera_pipeline_stage_duration_seconds",
			Help: "Wall time per pipeline stage",
			// Attribution and prevalidation are sub-second; the proof over a
			// statewide layer can run into minutes.
			Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"stage"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tessera_pipeline_batch_size",
			Help:    "Number of layers submitted per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		Resumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tessera_pipeline_resumed_total",
			Help: "Batch layers skipped because a prior run covered the same fingerprint",
		}),
	}
}

// IncrementRun records a completed validation run.
func (m *Metrics) IncrementRun(verdict string) {
	if m != nil {
		m.Runs.WithLabelValues(verdict).Inc()
	}
}

// ObserveStage records the wall time of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

// ObserveBatch records the size of a submitted batch.
func (m *Metrics) ObserveBatch(size int) {
	if m != nil {
		m.BatchSize.Observe(float64(size))
	}
}

// IncrementResumed records a layer skipped by batch resume.
func (m *Metrics) IncrementResumed() {
	if m != nil {
		m.Resumed.Inc()
	}
}
