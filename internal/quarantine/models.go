// Package quarantine holds layers the pipeline refused to certify, pending
// human review. Entries are append-only: each is created pending and moves
// exactly once to a terminal status (approved, rejected, or remediated);
// nothing is ever deleted. The snapshot captured at quarantine time is
// immutable; review decisions are recorded next to it, never over it.
package quarantine

import (
	"time"

	"tessera/internal/attribution"
	"tessera/internal/geometry"
	id "tessera/pkg/domain"
)

// Snapshot freezes the layer and its attribution outcome exactly as the
// pipeline saw them when it quarantined the layer. Written once, never
// mutated; reviewers judge the snapshot, not the live layer.
type Snapshot struct {
	Layer       geometry.CandidateLayer `json:"layer"`
	Attribution attribution.Result      `json:"attribution"`
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// reach the persisted snapshot through a returned entry.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Layer.Features != nil {
		out.Layer.Features = make([]geometry.Feature, len(s.Layer.Features))
		for i, f := range s.Layer.Features {
			out.Layer.Features[i] = geometry.Feature{Name: f.Name, Geometry: f.Geometry.Clone()}
		}
	}
	if s.Attribution.Attempts != nil {
		out.Attribution.Attempts = append([]attribution.Attempt(nil), s.Attribution.Attempts...)
	}
	return out
}

// Entry is one quarantined layer awaiting or past review.
//
// Jurisdiction is empty when the layer never resolved to one (the
// attribution_unresolved category); every other field is set at creation.
// The review fields stay zero until the entry leaves pending.
type Entry struct {
	ID           id.QuarantineID    `json:"id"`
	RunID        id.RunID           `json:"run_id"`
	Jurisdiction id.JurisdictionID  `json:"jurisdiction,omitempty"`
	Category     id.FailureCategory `json:"category"`
	Detail       string             `json:"detail"`
	Snapshot     Snapshot           `json:"snapshot"`
	CreatedAt    time.Time          `json:"created_at"`

	Status         id.ReviewStatus `json:"status"`
	ReviewedBy     id.ReviewerID   `json:"reviewed_by,omitempty"`
	ReviewNotes    string          `json:"review_notes,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	RemediationRun *id.RunID       `json:"remediation_run,omitempty"`
}

// Review is the terminal decision applied to a pending entry.
// RemediationRun is set only for the remediated status and names the
// validation run that certified the corrected layer.
type Review struct {
	Status         id.ReviewStatus
	ReviewedBy     id.ReviewerID
	Notes          string
	ReviewedAt     time.Time
	RemediationRun *id.RunID
}
