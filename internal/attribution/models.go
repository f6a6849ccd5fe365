// Package attribution assigns a scraped candidate layer to a jurisdiction
// with a defensible confidence score. Evidence methods run in fixed priority
// order, each with a fixed confidence ceiling; the first method producing a
// candidate wins outright. Confidences are never blended: a high-priority
// answer is authoritative even when lower methods would disagree. When every
// method comes up empty the result is a normal zero-confidence outcome, not
// an error.
package attribution

import (
	id "tessera/pkg/domain"
)

// Confidence ceilings per evidence method. A method never reports more
// confidence than its ceiling, whatever the quality of its match.
const (
	confidenceOrganization    = 0.95
	confidenceCentroidGeocode = 0.85
	confidenceNameParse       = 0.75
	confidenceMetadataParse   = 0.70
	confidenceSpatialRef      = 0.40
)

// AttemptOutcome states what one evidence method attempt produced.
type AttemptOutcome string

const (
	// AttemptMatched means the method produced the winning candidate.
	AttemptMatched AttemptOutcome = "matched"
	// AttemptNoMatch means the method ran and produced nothing.
	AttemptNoMatch AttemptOutcome = "no_match"
	// AttemptFailed means the method's collaborator failed; the failure is
	// recorded and resolution moves on, never aborts.
	AttemptFailed AttemptOutcome = "failed"
)

// Attempt records one evidence method attempt, in the order attempted.
// Methods below the winning one are never attempted.
type Attempt struct {
	Method  id.EvidenceMethod `json:"method"`
	Outcome AttemptOutcome    `json:"outcome"`
	Detail  string            `json:"detail,omitempty"`
}

// Result is the outcome of resolving one layer. An unresolved layer has an
// empty Jurisdiction, zero Confidence, and Method EvidenceNone.
type Result struct {
	Jurisdiction id.JurisdictionID `json:"jurisdiction,omitempty"`
	Confidence   float64           `json:"confidence"`
	Method       id.EvidenceMethod `json:"method,omitempty"`
	Attempts     []Attempt         `json:"attempts"`
}

// Resolved reports whether any evidence method produced a jurisdiction.
func (r Result) Resolved() bool {
	return !r.Jurisdiction.IsNil()
}
