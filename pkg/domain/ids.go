// Package domain provides typed identifier and enum primitives shared across
// the pipeline. Constructing values via the Parse helpers enforces validity at
// trust boundaries; direct casting bypasses validation and is reserved for
// internal code that already holds a validated value.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "tessera/pkg/domain-errors"
)

// UUID-backed identifiers. Distinct types prevent cross-assignment at compile
// time (a RunID can never be passed where a LayerID is expected).
type (
	// LayerID identifies a single ingested candidate layer.
	LayerID uuid.UUID

	// RunID identifies one validation run over one layer.
	RunID uuid.UUID

	// QuarantineID identifies a quarantine entry.
	QuarantineID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return parsed, nil
}

func ParseLayerID(s string) (LayerID, error) {
	parsed, err := parseUUID(s, "layer id")
	return LayerID(parsed), err
}

func ParseRunID(s string) (RunID, error) {
	parsed, err := parseUUID(s, "run id")
	return RunID(parsed), err
}

func ParseQuarantineID(s string) (QuarantineID, error) {
	parsed, err := parseUUID(s, "quarantine id")
	return QuarantineID(parsed), err
}

// NewLayerID generates a fresh layer identifier.
func NewLayerID() LayerID { return LayerID(uuid.New()) }

// NewRunID generates a fresh run identifier.
func NewRunID() RunID { return RunID(uuid.New()) }

// NewQuarantineID generates a fresh quarantine entry identifier.
func NewQuarantineID() QuarantineID { return QuarantineID(uuid.New()) }

func (id LayerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id RunID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id QuarantineID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id LayerID) String() string { return uuid.UUID(id).String() }

func (id RunID) String() string { return uuid.UUID(id).String() }

func (id QuarantineID) String() string { return uuid.UUID(id).String() }

// The wrapper types must re-declare text marshaling: named types do not
// inherit uuid.UUID's methods, and without these the IDs would serialize as
// raw byte arrays in JSON payloads and persisted snapshots.

func (id LayerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *LayerID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "layer id")
	*id = LayerID(parsed)
	return err
}

func (id RunID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RunID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "run id")
	*id = RunID(parsed)
	return err
}

func (id QuarantineID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *QuarantineID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "quarantine id")
	*id = QuarantineID(parsed)
	return err
}

// JurisdictionID is the canonical geographic code for a governed area, e.g.
// "us/il/chicago". Codes are lowercase, slash-delimited, and stable across
// boundary vintages.
type JurisdictionID string

const maxJurisdictionIDLen = 256

// ParseJurisdictionID validates a canonical geographic code.
//
// Errors: CodeInvalidInput when the code is empty, oversized, or contains
// whitespace or control characters.
func ParseJurisdictionID(s string) (JurisdictionID, error) {
	// Validate the lowered form: that is the value stored and re-parsed, and
	// lowering can change byte length.
	s = strings.ToLower(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id cannot be empty")
	}
	if len(s) > maxJurisdictionIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id too long")
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id contains whitespace or control characters")
		}
	}
	return JurisdictionID(s), nil
}

func (id JurisdictionID) IsNil() bool { return id == "" }

func (id JurisdictionID) String() string { return string(id) }

// ReviewerID identifies the human reviewer recorded on quarantine decisions.
// It is the authenticated subject claim, not a free-form name.
type ReviewerID string

func ParseReviewerID(s string) (ReviewerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reviewer id cannot be empty")
	}
	return ReviewerID(s), nil
}

func (id ReviewerID) IsNil() bool { return id == "" }

func (id ReviewerID) String() string { return string(id) }

// OrganizationID is the publisher organization identifier carried in layer
// metadata (portal account, agency slug). Matching is case-insensitive, so
// the parsed form is lowercased.
type OrganizationID string

func ParseOrganizationID(s string) (OrganizationID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organization id cannot be empty")
	}
	return OrganizationID(strings.ToLower(s)), nil
}

func (id OrganizationID) IsNil() bool { return id == "" }

func (id OrganizationID) String() string { return string(id) }

// SRID is a spatial reference system identifier (EPSG code).
type SRID int

// IsValid reports whether the SRID is a plausible EPSG code.
func (s SRID) IsValid() bool { return s > 0 && s < 1_000_000 }

func (s SRID) IsNil() bool { return s == 0 }
