// Package boundary supplies authoritative jurisdiction boundaries. The
// Authority interface is the pipeline's only view; FileAuthority backs it
// with a YAML index plus GeoJSON files on disk. An authority handing back
// degenerate geometry is systemic misconfiguration, not bad input data, and
// surfaces loudly as an invariant violation.
package boundary

import (
	"context"

	"github.com/paulmach/orb"

	id "tessera/pkg/domain"
)

// Jurisdiction is an authoritative boundary with its measured areas.
// LandAreaM2/WaterAreaM2 come from the authority's survey, not from the
// boundary polygon; shoreline boundaries routinely enclose water the survey
// counts separately.
type Jurisdiction struct {
	ID          id.JurisdictionID
	Name        string
	Geometry    orb.MultiPolygon
	LandAreaM2  float64
	WaterAreaM2 float64
	Vintage     string
}

// Authority answers boundary lookups by jurisdiction id.
//
// Errors: CodeNotFound when the jurisdiction is not covered;
// CodeInvariantViolation when the stored boundary is degenerate.
type Authority interface {
	Boundary(ctx context.Context, jid id.JurisdictionID) (*Jurisdiction, error)
}
