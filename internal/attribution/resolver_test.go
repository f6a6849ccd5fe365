package attribution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/geocode"
	"tessera/internal/geometry"
	"tessera/internal/registry"
	id "tessera/pkg/domain"
)

// stubGeocoder answers every lookup with a canned result and counts calls so
// tests can assert how often the resolver reached for it.
type stubGeocoder struct {
	calls  int
	result *geocode.Result
	err    error
}

func (s *stubGeocoder) ReverseGeocode(_ context.Context, _ orb.Point) (*geocode.Result, error) {
	s.calls++
	return s.result, s.err
}

func newTestResolver(geocoder geocode.Geocoder) *Resolver {
	orgs := registry.NewOrganizationDirectory([]registry.OrganizationEntry{
		{Organization: "city-of-chicago", Jurisdiction: "us/il/chicago"},
	})
	srids := registry.NewSpatialRefDirectory([]registry.SpatialRefEntry{
		{SRID: 3435, Jurisdiction: "us/il"},
	})
	centroids := registry.NewCentroidDirectory([]registry.CentroidEntry{
		{Jurisdiction: "us/il/chicago", Lon: -87.63, Lat: 41.88},
		{Jurisdiction: "us/wi/milwaukee", Lon: -87.91, Lat: 43.04},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(orgs, srids, centroids, geocoder, logger, nil)
}

func chicagoSquare() orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{-87.64, 41.87}, {-87.62, 41.87}, {-87.62, 41.89}, {-87.64, 41.89}, {-87.64, 41.87},
	}}}
}

func TestResolveOrganizationWinsOutright(t *testing.T) {
	// Both the organization lookup and the geocoder would succeed here, with
	// different answers. The higher-priority method must win alone; nothing
	// below it runs and the confidences are never combined.
	geocoder := &stubGeocoder{result: &geocode.Result{Jurisdiction: "us/wi/milwaukee", Source: "gazetteer"}}
	r := newTestResolver(geocoder)

	layer := geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name:         "Milwaukee Aldermanic Districts",
			Organization: "city-of-chicago",
			SpatialRef:   3435,
		},
		Features: []geometry.Feature{{Geometry: chicagoSquare()}},
	}

	result := r.Resolve(context.Background(), layer)

	require.True(t, result.Resolved())
	assert.Equal(t, id.JurisdictionID("us/il/chicago"), result.Jurisdiction)
	assert.Equal(t, id.EvidenceOrganization, result.Method)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, 0, geocoder.calls)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, AttemptMatched, result.Attempts[0].Outcome)
}

func TestResolveCentroidGeocode(t *testing.T) {
	geocoder := &stubGeocoder{result: &geocode.Result{Jurisdiction: "us/il/chicago", Source: "gazetteer", DistanceM: 840}}
	r := newTestResolver(geocoder)

	layer := geometry.CandidateLayer{
		ID:       id.NewLayerID(),
		Features: []geometry.Feature{{Geometry: chicagoSquare()}},
	}

	result := r.Resolve(context.Background(), layer)

	require.True(t, result.Resolved())
	assert.Equal(t, id.JurisdictionID("us/il/chicago"), result.Jurisdiction)
	assert.Equal(t, id.EvidenceCentroidGeocode, result.Method)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, 1, geocoder.calls)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, id.EvidenceOrganization, result.Attempts[0].Method)
	assert.Equal(t, AttemptNoMatch, result.Attempts[0].Outcome)
}

func TestResolveGeocoderFailureFallsThrough(t *testing.T) {
	geocoder := &stubGeocoder{err: errors.New("gazetteer backend unavailable")}
	r := newTestResolver(geocoder)

	layer := geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name: "Chicago Ward Boundaries",
		},
		Features: []geometry.Feature{{Geometry: chicagoSquare()}},
	}

	result := r.Resolve(context.Background(), layer)

	require.True(t, result.Resolved())
	assert.Equal(t, id.JurisdictionID("us/il/chicago"), result.Jurisdiction)
	assert.Equal(t, id.EvidenceNameParse, result.Method)
	assert.Equal(t, 0.75, result.Confidence)
	assert.Equal(t, 1, geocoder.calls)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, AttemptFailed, result.Attempts[1].Outcome)
}

func TestResolveMetadataParse(t *testing.T) {
	r := newTestResolver(&stubGeocoder{})

	layer := geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name:      "Ward Boundaries 2023",
			Copyright: "© City of Chicago GIS",
		},
	}

	result := r.Resolve(context.Background(), layer)

	require.True(t, result.Resolved())
	assert.Equal(t, id.JurisdictionID("us/il/chicago"), result.Jurisdiction)
	assert.Equal(t, id.EvidenceMetadataParse, result.Method)
	assert.Equal(t, 0.70, result.Confidence)
}

func TestResolveSpatialRefLast(t *testing.T) {
	r := newTestResolver(&stubGeocoder{})

	layer := geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name:       "District Boundaries",
			SpatialRef: 3435,
		},
	}

	result := r.Resolve(context.Background(), layer)

	require.True(t, result.Resolved())
	assert.Equal(t, id.JurisdictionID("us/il"), result.Jurisdiction)
	assert.Equal(t, id.EvidenceSpatialRef, result.Method)
	assert.Equal(t, 0.40, result.Confidence)
	assert.Len(t, result.Attempts, 5)
}

func TestResolveExhaustionIsNormal(t *testing.T) {
	geocoder := &stubGeocoder{}
	r := newTestResolver(geocoder)

	layer := geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name: "District Boundaries 2023",
		},
	}

	result := r.Resolve(context.Background(), layer)

	assert.False(t, result.Resolved())
	assert.Empty(t, result.Jurisdiction)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Method)
	require.Len(t, result.Attempts, 5)
	for _, attempt := range result.Attempts {
		assert.Equal(t, AttemptNoMatch, attempt.Outcome, "method %s", attempt.Method)
	}
	// No measurable geometry, so the geocoder was never consulted.
	assert.Equal(t, 0, geocoder.calls)
}

func TestResolveNilGeocoder(t *testing.T) {
	r := newTestResolver(nil)

	layer := geometry.CandidateLayer{
		ID:       id.NewLayerID(),
		Features: []geometry.Feature{{Geometry: chicagoSquare()}},
	}

	result := r.Resolve(context.Background(), layer)

	assert.False(t, result.Resolved())
	require.Len(t, result.Attempts, 5)
	assert.Equal(t, AttemptNoMatch, result.Attempts[1].Outcome)
	assert.Equal(t, "geocoding capability not deployed", result.Attempts[1].Detail)
}

func TestResolveAtMostOneGeocodeCall(t *testing.T) {
	geocoder := &stubGeocoder{result: nil}
	r := newTestResolver(geocoder)

	layer := geometry.CandidateLayer{
		ID:       id.NewLayerID(),
		Features: []geometry.Feature{{Geometry: chicagoSquare()}},
	}

	_ = r.Resolve(context.Background(), layer)

	assert.Equal(t, 1, geocoder.calls)
}
