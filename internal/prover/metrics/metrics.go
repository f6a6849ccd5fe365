package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tessellation prover.
type Metrics struct {
	// Full proof durations by overall verdict
	ProofDuration *prometheus.HistogramVec

	// Per-axiom outcomes by axiom and verdict
	AxiomOutcomes *prometheus.CounterVec
}

// New creates a Metrics instance with all prover metrics registered.
func New() *Metrics {
	return &Metrics{
		ProofDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tessera_prover_proof_duration_seconds",
			Help:    "Duration of full four-axiom proofs by overall verdict",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"verdict"}),

		AxiomOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_prover_axiom_outcomes_total",
			Help: "Total axiom evaluations by axiom and verdict",
		}, []string{"axiom", "verdict"}),
	}
}

// ObserveProof records the duration of one full proof.
func (m *Metrics) ObserveProof(verdict string, d time.Duration) {
	if m != nil {
		m.ProofDuration.WithLabelValues(verdict).Observe(d.Seconds())
	}
}

// IncrementAxiom records one axiom evaluation outcome.
func (m *Metrics) IncrementAxiom(axiom, verdict string) {
	if m != nil {
		m.AxiomOutcomes.WithLabelValues(axiom, verdict).Inc()
	}
}
