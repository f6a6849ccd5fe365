// Package pipeline orchestrates validation of candidate district layers:
// attribution, exclusion check, boundary fetch, tolerance derivation, fast
// prevalidation, the tessellation proof, run persistence, and quarantine
// routing. Runs are append-only; the current result for a jurisdiction is
// its latest run, derived by query, never by update-in-place.
package pipeline

import (
	"time"

	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
)

// ValidationRun is the persisted outcome of validating one layer once. The
// profile is embedded so a later change of tolerance defaults never
// reinterprets history. For runs that stopped before the proof (unresolved
// attribution, exclusion, prevalidation rejection) Profile and Axioms are
// empty and Detail explains why; Rejections keeps the structured filter
// codes behind a prevalidation rejection so downstream aggregation never
// has to parse Detail.
type ValidationRun struct {
	ID              id.RunID             `json:"id"`
	LayerID         id.LayerID           `json:"layer_id"`
	Fingerprint     string               `json:"fingerprint"`
	Jurisdiction    id.JurisdictionID    `json:"jurisdiction,omitempty"`
	Method          id.EvidenceMethod    `json:"method,omitempty"`
	Confidence      float64              `json:"confidence"`
	Profile         *tolerance.Profile   `json:"profile,omitempty"`
	Axioms          []prover.AxiomResult `json:"axioms,omitempty"`
	EdgeCases       []prevalidate.Reason `json:"edge_cases,omitempty"`
	Rejections      []prevalidate.Reason `json:"rejections,omitempty"`
	Verdict         id.Verdict           `json:"verdict"`
	FailureCategory id.FailureCategory   `json:"failure_category,omitempty"`
	Detail          string               `json:"detail,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// EdgeFlagged reports whether any prevalidation check demanded human review
// of an otherwise continuing run.
func (r ValidationRun) EdgeFlagged() bool { return len(r.EdgeCases) > 0 }

// BatchItem is the per-layer outcome of a batch. Exactly one of RunID or
// Error is meaningful; Resumed marks layers skipped because a run for the
// same fingerprint already existed.
type BatchItem struct {
	LayerID id.LayerID `json:"layer_id"`
	RunID   id.RunID   `json:"run_id,omitzero"`
	Verdict id.Verdict `json:"verdict,omitempty"`
	Resumed bool       `json:"resumed,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BatchResult summarizes one batch invocation. Items keeps the input order.
type BatchResult struct {
	Total   int         `json:"total"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
	Skipped int         `json:"skipped"`
	Resumed int         `json:"resumed"`
	Errored int         `json:"errored"`
	Items   []BatchItem `json:"items"`
}
