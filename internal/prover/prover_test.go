package prover

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/boundary"
	"tessera/internal/geometry"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

func square(minLon, minLat, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat},
		{minLon + size, minLat},
		{minLon + size, minLat + size},
		{minLon, minLat + size},
		{minLon, minLat},
	}}}
}

func layerOf(districts ...orb.MultiPolygon) geometry.CandidateLayer {
	features := make([]geometry.Feature, len(districts))
	for i, d := range districts {
		features[i] = geometry.Feature{Geometry: d}
	}
	return geometry.CandidateLayer{ID: id.NewLayerID(), Features: features}
}

// jurisdictionOf derives the land area from the boundary itself so a perfect
// tessellation lands on a coverage ratio of 1.
func jurisdictionOf(g orb.MultiPolygon) *boundary.Jurisdiction {
	return &boundary.Jurisdiction{
		ID:         "us/test/quadville",
		Name:       "Quadville",
		Geometry:   g,
		LandAreaM2: geometry.Area(g),
		Vintage:    "2024",
	}
}

func inlandProfile() tolerance.Profile {
	return tolerance.Profile{
		WaterFraction:    0.03,
		OverlapEpsilonM2: 25_000,
		OutsideRatioMax:  0.15,
		CoverageMin:      0.85,
		CoverageMax:      1.15,
	}
}

func coastalProfile() tolerance.Profile {
	p := inlandProfile()
	p.Coastal = true
	p.WaterFraction = 0.3
	p.CoverageMax = 2.0
	return p
}

func newProver() *Prover {
	return New(geometry.NewKernel(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func axiomResult(t *testing.T, proof Proof, axiom id.Axiom) AxiomResult {
	t.Helper()
	for _, a := range proof.Axioms {
		if a.Axiom == axiom {
			return a
		}
	}
	t.Fatalf("proof carries no %s axiom", axiom)
	return AxiomResult{}
}

func TestProvePerfectTessellation(t *testing.T) {
	p := newProver()
	jur := jurisdictionOf(square(0, 0, 0.02))
	layer := layerOf(
		square(0, 0, 0.01),
		square(0.01, 0, 0.01),
		square(0, 0.01, 0.01),
		square(0.01, 0.01, 0.01),
	)

	proof, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 4, true)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictPass, proof.Verdict)
	require.Len(t, proof.Axioms, 4)
	assert.Equal(t, id.Axioms(), []id.Axiom{
		proof.Axioms[0].Axiom, proof.Axioms[1].Axiom, proof.Axioms[2].Axiom, proof.Axioms[3].Axiom,
	})
	for _, a := range proof.Axioms {
		assert.Equal(t, id.VerdictPass, a.Verdict, "axiom %s", a.Axiom)
	}

	exhaustivity := axiomResult(t, proof, id.AxiomExhaustivity)
	require.NotEmpty(t, exhaustivity.Checks)
	assert.InDelta(t, 1.0, exhaustivity.Checks[0].Value, 0.01)
}

func TestProveContainmentTranslatedDistrict(t *testing.T) {
	p := newProver()
	// A jurisdiction square roughly 1000 m on a side, one district fully
	// inside, one translated about 2000 m east with zero overlap.
	jur := jurisdictionOf(square(0, 0, 0.009))
	layer := layerOf(
		square(0.0005, 0.0005, 0.008),
		square(0.02, 0, 0.009),
	)

	proof, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 2, true)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictFail, proof.Verdict)

	containment := axiomResult(t, proof, id.AxiomContainment)
	assert.Equal(t, id.VerdictFail, containment.Verdict)
	assert.Contains(t, containment.Detail, "1 of 2 districts")
	require.Len(t, containment.Checks, 2)
	assert.InDelta(t, 0.0, containment.Checks[0].Value, 1e-9)
	assert.False(t, containment.Checks[0].Failed)
	assert.InDelta(t, 1.0, containment.Checks[1].Value, 1e-9)
	assert.True(t, containment.Checks[1].Failed)
}

func TestProveExclusivity(t *testing.T) {
	p := newProver()
	profile := inlandProfile()

	t.Run("shared edge passes with zero overlap", func(t *testing.T) {
		jur := jurisdictionOf(square(0, 0, 0.02))
		layer := layerOf(square(0, 0, 0.01), square(0.01, 0, 0.01))

		proof, err := p.Prove(context.Background(), layer, jur, profile, 0, false)

		require.NoError(t, err)
		exclusivity := axiomResult(t, proof, id.AxiomExclusivity)
		assert.Equal(t, id.VerdictPass, exclusivity.Verdict)
		require.Len(t, exclusivity.Checks, 1)
		assert.Zero(t, exclusivity.Checks[0].Value)
	})

	t.Run("overlap below epsilon passes and is classified", func(t *testing.T) {
		// A 0.00015 degree strip between two 0.01 degree squares is about
		// 18,600 m2, under the 25,000 m2 epsilon.
		jur := jurisdictionOf(square(0, 0, 0.02))
		layer := layerOf(square(0, 0, 0.01), square(0.00985, 0, 0.01))

		proof, err := p.Prove(context.Background(), layer, jur, profile, 0, false)

		require.NoError(t, err)
		exclusivity := axiomResult(t, proof, id.AxiomExclusivity)
		assert.Equal(t, id.VerdictPass, exclusivity.Verdict)
		require.Len(t, exclusivity.Checks, 2)
		assert.Contains(t, exclusivity.Checks[0].Note, "sliver")
		assert.False(t, exclusivity.Checks[1].Failed)
	})

	t.Run("overlap above epsilon fails", func(t *testing.T) {
		// A 0.0003 degree strip is about 37,200 m2.
		jur := jurisdictionOf(square(0, 0, 0.02))
		layer := layerOf(square(0, 0, 0.01), square(0.0097, 0, 0.01))

		proof, err := p.Prove(context.Background(), layer, jur, profile, 0, false)

		require.NoError(t, err)
		assert.Equal(t, id.VerdictFail, proof.Verdict)
		exclusivity := axiomResult(t, proof, id.AxiomExclusivity)
		assert.Equal(t, id.VerdictFail, exclusivity.Verdict)
		assert.Contains(t, exclusivity.Detail, "exceeds")
	})
}

func TestProveExhaustivity(t *testing.T) {
	p := newProver()
	jur := jurisdictionOf(square(0, 0, 0.02))

	t.Run("half coverage fails", func(t *testing.T) {
		layer := layerOf(square(0, 0, 0.01), square(0.01, 0, 0.01))

		proof, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 0, false)

		require.NoError(t, err)
		exhaustivity := axiomResult(t, proof, id.AxiomExhaustivity)
		assert.Equal(t, id.VerdictFail, exhaustivity.Verdict)
		assert.InDelta(t, 0.5, exhaustivity.Checks[0].Value, 0.01)
	})

	t.Run("full coverage passes under either classification", func(t *testing.T) {
		layer := layerOf(
			square(0, 0, 0.01),
			square(0.01, 0, 0.01),
			square(0, 0.01, 0.01),
			square(0.01, 0.01, 0.01),
		)

		for _, profile := range []tolerance.Profile{inlandProfile(), coastalProfile()} {
			proof, err := p.Prove(context.Background(), layer, jur, profile, 0, false)

			require.NoError(t, err)
			exhaustivity := axiomResult(t, proof, id.AxiomExhaustivity)
			assert.Equal(t, id.VerdictPass, exhaustivity.Verdict, "coastal=%v", profile.Coastal)
		}
	})
}

func TestProveCardinality(t *testing.T) {
	p := newProver()
	jur := jurisdictionOf(square(0, 0, 0.02))
	layer := layerOf(
		square(0, 0, 0.01),
		square(0.01, 0, 0.01),
		square(0, 0.01, 0.01),
		square(0.01, 0.01, 0.01),
	)

	t.Run("mismatch fails despite perfect geometry", func(t *testing.T) {
		proof, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 5, true)

		require.NoError(t, err)
		assert.Equal(t, id.VerdictFail, proof.Verdict)
		cardinality := axiomResult(t, proof, id.AxiomCardinality)
		assert.Equal(t, id.VerdictFail, cardinality.Verdict)
		assert.Contains(t, cardinality.Detail, "counted 4 districts against 5 expected")
	})

	t.Run("unknown expectation skips without failing", func(t *testing.T) {
		proof, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 0, false)

		require.NoError(t, err)
		assert.Equal(t, id.VerdictPass, proof.Verdict)
		cardinality := axiomResult(t, proof, id.AxiomCardinality)
		assert.Equal(t, id.VerdictSkipped, cardinality.Verdict)
		assert.Contains(t, cardinality.Detail, "unknown expectation")
	})
}

func TestProveGeometryErrorScopedToLayer(t *testing.T) {
	p := newProver()
	jur := jurisdictionOf(square(0, 0, 0.02))
	layer := layerOf(square(0, 0, 0.01), orb.MultiPolygon{})

	_, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 2, true)

	require.Error(t, err)
	assert.True(t, geometry.IsGeometryError(err))
	assert.Contains(t, err.Error(), "district 1")
}

func TestProveCollaboratorViolationsSurfaceLoudly(t *testing.T) {
	p := newProver()
	layer := layerOf(square(0, 0, 0.01))

	t.Run("malformed tolerance profile", func(t *testing.T) {
		jur := jurisdictionOf(square(0, 0, 0.02))

		_, err := p.Prove(context.Background(), layer, jur, tolerance.Profile{}, 1, true)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("non-positive land area", func(t *testing.T) {
		jur := jurisdictionOf(square(0, 0, 0.02))
		jur.LandAreaM2 = 0

		_, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 1, true)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("irreparable boundary geometry", func(t *testing.T) {
		jur := &boundary.Jurisdiction{
			ID:         "us/test/quadville",
			Geometry:   orb.MultiPolygon{},
			LandAreaM2: 1_000_000,
		}

		_, err := p.Prove(context.Background(), layer, jur, inlandProfile(), 1, true)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestClassifyOverlap(t *testing.T) {
	assert.Contains(t, classifyOverlap(0.03), "sliver")
	assert.Contains(t, classifyOverlap(0.7), "blob")
}
