package domain

import dErrors "tessera/pkg/domain-errors"

// Verdict is the overall outcome of a validation run.
// Invariant: SKIPPED is reserved for structurally excluded jurisdictions; it
// is never a soft PASS and never a soft FAIL.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictSkipped Verdict = "SKIPPED"
)

var validVerdicts = map[Verdict]bool{
	VerdictPass:    true,
	VerdictFail:    true,
	VerdictSkipped: true,
}

func (v Verdict) IsValid() bool { return validVerdicts[v] }

func (v Verdict) String() string { return string(v) }

// Axiom names one of the four tessellation proofs.
type Axiom string

const (
	AxiomContainment  Axiom = "containment"
	AxiomExclusivity  Axiom = "exclusivity"
	AxiomExhaustivity Axiom = "exhaustivity"
	AxiomCardinality  Axiom = "cardinality"
)

var validAxioms = map[Axiom]bool{
	AxiomContainment:  true,
	AxiomExclusivity:  true,
	AxiomExhaustivity: true,
	AxiomCardinality:  true,
}

// Axioms returns all axioms in proof order.
func Axioms() []Axiom {
	return []Axiom{AxiomContainment, AxiomExclusivity, AxiomExhaustivity, AxiomCardinality}
}

func (a Axiom) IsValid() bool { return validAxioms[a] }

func (a Axiom) String() string { return string(a) }

// EvidenceMethod names an attribution strategy. Order of declaration matches
// resolver priority; the resolver owns the confidence ceilings.
type EvidenceMethod string

const (
	EvidenceOrganization    EvidenceMethod = "organization_identity"
	EvidenceCentroidGeocode EvidenceMethod = "centroid_geocode"
	EvidenceNameParse       EvidenceMethod = "name_parse"
	EvidenceMetadataParse   EvidenceMethod = "metadata_parse"
	EvidenceSpatialRef      EvidenceMethod = "spatial_reference"

	// EvidenceNone marks a result for which no method produced a candidate.
	EvidenceNone EvidenceMethod = "none"
)

var validEvidenceMethods = map[EvidenceMethod]bool{
	EvidenceOrganization:    true,
	EvidenceCentroidGeocode: true,
	EvidenceNameParse:       true,
	EvidenceMetadataParse:   true,
	EvidenceSpatialRef:      true,
	EvidenceNone:            true,
}

func (m EvidenceMethod) IsValid() bool { return validEvidenceMethods[m] }

func (m EvidenceMethod) String() string { return string(m) }

// ReviewStatus is the quarantine review state machine.
// pending is the only non-terminal state; all transitions out of it are final.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewApproved   ReviewStatus = "approved"
	ReviewRejected   ReviewStatus = "rejected"
	ReviewRemediated ReviewStatus = "remediated"
)

var validReviewStatuses = map[ReviewStatus]bool{
	ReviewPending:    true,
	ReviewApproved:   true,
	ReviewRejected:   true,
	ReviewRemediated: true,
}

func ParseReviewStatus(s string) (ReviewStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "review status cannot be empty")
	}
	status := ReviewStatus(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid review status")
	}
	return status, nil
}

func (s ReviewStatus) IsValid() bool { return validReviewStatuses[s] }

func (s ReviewStatus) IsTerminal() bool { return s.IsValid() && s != ReviewPending }

func (s ReviewStatus) String() string { return string(s) }

// CanTransitionTo reports whether the state machine permits moving to next.
// Terminal states permit nothing.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	return s == ReviewPending && next.IsTerminal()
}

// FailureCategory is the machine-assigned reason a layer entered quarantine.
type FailureCategory string

const (
	FailureAttributionUnresolved FailureCategory = "attribution_unresolved"
	FailurePreValidationRejected FailureCategory = "prevalidation_rejected"
	FailureAxiomViolation        FailureCategory = "axiom_violation"
	FailureGeometryError         FailureCategory = "geometry_error"
	FailureRegistryInconsistency FailureCategory = "registry_inconsistency"
)

var validFailureCategories = map[FailureCategory]bool{
	FailureAttributionUnresolved: true,
	FailurePreValidationRejected: true,
	FailureAxiomViolation:        true,
	FailureGeometryError:         true,
	FailureRegistryInconsistency: true,
}

func (c FailureCategory) IsValid() bool { return validFailureCategories[c] }

func (c FailureCategory) String() string { return string(c) }

// RejectReason is the specific fast prevalidation check that rejected a layer.
type RejectReason string

const (
	RejectFeatureCountRatio RejectReason = "feature_count_ratio"
	RejectCentroidDistance  RejectReason = "centroid_distance"
	RejectBBoxDisjoint      RejectReason = "bbox_disjoint"
	RejectNameKeyword       RejectReason = "name_keyword"
)

var validRejectReasons = map[RejectReason]bool{
	RejectFeatureCountRatio: true,
	RejectCentroidDistance:  true,
	RejectBBoxDisjoint:      true,
	RejectNameKeyword:       true,
}

func (r RejectReason) IsValid() bool { return validRejectReasons[r] }

func (r RejectReason) String() string { return string(r) }
