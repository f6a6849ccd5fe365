// Package geometry holds the polygon primitives the validation pipeline is
// built on: candidate layer types, the shared area-weighted centroid, geodesic
// measurement, and a GEOS-backed kernel for boolean operations. Axiom logic
// lives in the prover; this package only answers geometric questions.
package geometry

import (
	"github.com/paulmach/orb"

	id "tessera/pkg/domain"
)

// Feature is a single polygon feature of a candidate layer, typically one
// district.
type Feature struct {
	Name     string           `json:"name,omitempty"`
	Geometry orb.MultiPolygon `json:"geometry"`
}

// LayerMetadata carries the source metadata that rode along with a scraped
// layer. All fields are optional; attribution works with whatever is present.
type LayerMetadata struct {
	Name          string            `json:"name,omitempty"`
	Copyright     string            `json:"copyright,omitempty"`
	Description   string            `json:"description,omitempty"`
	SourceURL     string            `json:"source_url,omitempty"`
	Organization  id.OrganizationID `json:"organization,omitempty"`
	SpatialRef    id.SRID           `json:"spatial_ref,omitempty"`
	DeclaredCount int               `json:"declared_count,omitempty"`
}

// CandidateLayer is a raw scraped boundary layer awaiting attribution and
// validation. Immutable once ingested; owned by the pipeline run that
// produced it.
type CandidateLayer struct {
	ID       id.LayerID    `json:"id"`
	Metadata LayerMetadata `json:"metadata"`
	Features []Feature     `json:"features"`
}

// FeatureCount returns the number of polygon features actually present.
func (l CandidateLayer) FeatureCount() int {
	return len(l.Features)
}

// Bound returns the axis-aligned bounding box enclosing every feature.
// The zero Bound is returned for a layer with no coordinates.
func (l CandidateLayer) Bound() orb.Bound {
	var bound orb.Bound
	first := true
	for _, f := range l.Features {
		if len(f.Geometry) == 0 {
			continue
		}
		fb := f.Geometry.Bound()
		if first {
			bound = fb
			first = false
			continue
		}
		bound = bound.Union(fb)
	}
	return bound
}
