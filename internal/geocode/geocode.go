// Package geocode is the reverse-geocoding capability behind evidence
// method 2: given a layer's computed centroid, which jurisdiction is it in?
// The pipeline holds the Geocoder interface only; concrete answers come from
// the offline gazetteer, optionally fronted by the Redis cache. A geocoder
// that cannot answer returns (nil, nil); a missing answer is a normal
// outcome, not a failure.
package geocode

import (
	"context"

	"github.com/paulmach/orb"

	id "tessera/pkg/domain"
)

// Result is a reverse-geocode answer.
type Result struct {
	Jurisdiction id.JurisdictionID `json:"jurisdiction"`
	Source       string            `json:"source"`
	DistanceM    float64           `json:"distance_m"`
}

// Geocoder resolves a point to a jurisdiction. A nil Result with nil error
// means the capability has no answer for that point.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, pt orb.Point) (*Result, error)
}
