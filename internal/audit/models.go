// Package audit records what the pipeline did and what reviewers decided.
// Events are emitted fire-and-forget from domain code, buffered in process,
// and fanned out by a worker to sinks: the append-only store, the structured
// log, and Kafka. Auditing must never block or fail the operation it
// describes; a full buffer drops the event and says so.
package audit

import (
	"time"

	id "tessera/pkg/domain"
)

// Action names what happened.
type Action string

const (
	ActionRunStarted       Action = "run_started"
	ActionRunCompleted     Action = "run_completed"
	ActionLayerQuarantined Action = "layer_quarantined"
	ActionReviewApproved   Action = "review_approved"
	ActionReviewRejected   Action = "review_rejected"
	ActionReviewRemediated Action = "review_remediated"
	ActionBatchCompleted   Action = "batch_completed"
)

// Event is one audited occurrence. Only Action and Timestamp are always set;
// the identifying fields are filled as far as the emitting stage knows them
// (a run that never resolved a jurisdiction has none to record).
type Event struct {
	Timestamp    time.Time          `json:"timestamp"`
	Action       Action             `json:"action"`
	RunID        id.RunID           `json:"run_id,omitzero"`
	LayerID      id.LayerID         `json:"layer_id,omitzero"`
	Jurisdiction id.JurisdictionID  `json:"jurisdiction,omitempty"`
	Verdict      id.Verdict         `json:"verdict,omitempty"`
	Category     id.FailureCategory `json:"category,omitempty"`
	Reviewer     id.ReviewerID      `json:"reviewer,omitempty"`
	RequestID    string             `json:"request_id,omitempty"`
	Detail       string             `json:"detail,omitempty"`
}
