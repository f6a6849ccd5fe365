// Package registry holds the curated read-only lookups the pipeline consults:
// structurally excluded jurisdictions, expected district counts, publisher
// organizations, spatial-reference region hints, and jurisdiction centroids.
// Directories are immutable after load, so concurrent reads need no locking.
// A jurisdiction absent from a directory is a null expectation, not an error;
// callers skip the dependent check and say so in diagnostics.
package registry

import (
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// VotingMethod explains why a jurisdiction is excluded from tessellation
// checks: it elects representatives without geographic districts.
type VotingMethod string

const (
	VotingMethodAtLarge      VotingMethod = "at-large"
	VotingMethodProportional VotingMethod = "proportional"
)

var validVotingMethods = map[VotingMethod]bool{
	VotingMethodAtLarge:      true,
	VotingMethodProportional: true,
}

// ParseVotingMethod constructs a VotingMethod from registry file input.
func ParseVotingMethod(s string) (VotingMethod, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "voting method cannot be empty")
	}
	m := VotingMethod(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid voting method")
	}
	return m, nil
}

func (m VotingMethod) IsValid() bool { return validVotingMethods[m] }

func (m VotingMethod) String() string { return string(m) }

// ExclusionEntry marks one jurisdiction as structurally excluded.
type ExclusionEntry struct {
	Jurisdiction id.JurisdictionID
	VotingMethod VotingMethod
	Seats        int
	Source       string
}

// ExclusionRegistry answers "is this jurisdiction excluded, and why".
type ExclusionRegistry struct {
	entries map[id.JurisdictionID]ExclusionEntry
}

func NewExclusionRegistry(entries []ExclusionEntry) *ExclusionRegistry {
	m := make(map[id.JurisdictionID]ExclusionEntry, len(entries))
	for _, e := range entries {
		m[e.Jurisdiction] = e
	}
	return &ExclusionRegistry{entries: m}
}

// Lookup returns the exclusion entry for a jurisdiction, if listed.
func (r *ExclusionRegistry) Lookup(jid id.JurisdictionID) (ExclusionEntry, bool) {
	e, ok := r.entries[jid]
	return e, ok
}

func (r *ExclusionRegistry) Len() int { return len(r.entries) }

// ExpectedCountEntry records how many districts a jurisdiction is known to
// have, with the citation that knowledge came from.
type ExpectedCountEntry struct {
	Jurisdiction id.JurisdictionID
	Districts    int
	Source       string
}

// ExpectedCounts answers "how many districts should this jurisdiction have".
// An absent jurisdiction means the expectation is unknown, and both the
// cardinality axiom and the feature-count prefilter skip themselves.
type ExpectedCounts struct {
	entries map[id.JurisdictionID]ExpectedCountEntry
}

func NewExpectedCounts(entries []ExpectedCountEntry) *ExpectedCounts {
	m := make(map[id.JurisdictionID]ExpectedCountEntry, len(entries))
	for _, e := range entries {
		m[e.Jurisdiction] = e
	}
	return &ExpectedCounts{entries: m}
}

// Expected returns the expected district count for a jurisdiction, if known.
func (r *ExpectedCounts) Expected(jid id.JurisdictionID) (int, bool) {
	e, ok := r.entries[jid]
	return e.Districts, ok
}

func (r *ExpectedCounts) Len() int { return len(r.entries) }

// OrganizationEntry links a data publisher's organizational identity to the
// jurisdiction it publishes for. The highest-confidence evidence there is.
type OrganizationEntry struct {
	Organization id.OrganizationID
	Jurisdiction id.JurisdictionID
}

// OrganizationDirectory answers "which jurisdiction does this publisher own".
type OrganizationDirectory struct {
	byOrg map[id.OrganizationID]id.JurisdictionID
}

func NewOrganizationDirectory(entries []OrganizationEntry) *OrganizationDirectory {
	m := make(map[id.OrganizationID]id.JurisdictionID, len(entries))
	for _, e := range entries {
		m[e.Organization] = e.Jurisdiction
	}
	return &OrganizationDirectory{byOrg: m}
}

// Jurisdiction returns the jurisdiction linked to a publisher organization.
func (r *OrganizationDirectory) Jurisdiction(org id.OrganizationID) (id.JurisdictionID, bool) {
	jid, ok := r.byOrg[org]
	return jid, ok
}

func (r *OrganizationDirectory) Len() int { return len(r.byOrg) }

// SpatialRefEntry links a projected coordinate system to the region it was
// designed for. Weak evidence: many jurisdictions share one state plane.
type SpatialRefEntry struct {
	SRID         id.SRID
	Jurisdiction id.JurisdictionID
}

// SpatialRefDirectory answers "which region does this SRID suggest".
type SpatialRefDirectory struct {
	bySRID map[id.SRID]id.JurisdictionID
}

func NewSpatialRefDirectory(entries []SpatialRefEntry) *SpatialRefDirectory {
	m := make(map[id.SRID]id.JurisdictionID, len(entries))
	for _, e := range entries {
		m[e.SRID] = e.Jurisdiction
	}
	return &SpatialRefDirectory{bySRID: m}
}

// RegionHint returns the jurisdiction a spatial reference system hints at.
func (r *SpatialRefDirectory) RegionHint(srid id.SRID) (id.JurisdictionID, bool) {
	jid, ok := r.bySRID[srid]
	return jid, ok
}

func (r *SpatialRefDirectory) Len() int { return len(r.bySRID) }

// CentroidEntry records a jurisdiction's representative point, used by the
// offline gazetteer for nearest-centroid reverse geocoding.
type CentroidEntry struct {
	Jurisdiction id.JurisdictionID
	Lon          float64
	Lat          float64
}

// CentroidDirectory holds jurisdiction centroids for gazetteer lookup.
type CentroidDirectory struct {
	entries []CentroidEntry
}

func NewCentroidDirectory(entries []CentroidEntry) *CentroidDirectory {
	copied := make([]CentroidEntry, len(entries))
	copy(copied, entries)
	return &CentroidDirectory{entries: copied}
}

// Entries returns a copy of all centroid entries.
func (r *CentroidDirectory) Entries() []CentroidEntry {
	out := make([]CentroidEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *CentroidDirectory) Len() int { return len(r.entries) }

// Set bundles every directory the pipeline consumes.
type Set struct {
	Exclusions     *ExclusionRegistry
	ExpectedCounts *ExpectedCounts
	Organizations  *OrganizationDirectory
	SpatialRefs    *SpatialRefDirectory
	Centroids      *CentroidDirectory
}

// EmptySet returns a Set with every directory present but empty. Useful as a
// degraded-mode default and in tests.
func EmptySet() *Set {
	return &Set{
		Exclusions:     NewExclusionRegistry(nil),
		ExpectedCounts: NewExpectedCounts(nil),
		Organizations:  NewOrganizationDirectory(nil),
		SpatialRefs:    NewSpatialRefDirectory(nil),
		Centroids:      NewCentroidDirectory(nil),
	}
}
