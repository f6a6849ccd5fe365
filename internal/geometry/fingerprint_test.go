package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "tessera/pkg/domain"
)

func TestFingerprint(t *testing.T) {
	base := func() CandidateLayer {
		return CandidateLayer{
			ID: id.NewLayerID(),
			Metadata: LayerMetadata{
				Name:          "City Council Districts",
				Organization:  "city-of-springfield",
				SpatialRef:    4326,
				DeclaredCount: 2,
			},
			Features: []Feature{
				{Name: "District 1", Geometry: square(0, 0, 0.01)},
				{Name: "District 2", Geometry: square(0.01, 0, 0.01)},
			},
		}
	}

	t.Run("stable across calls", func(t *testing.T) {
		layer := base()
		assert.Equal(t, Fingerprint(layer), Fingerprint(layer))
	})

	t.Run("submission id does not participate", func(t *testing.T) {
		a := base()
		b := base()
		b.ID = id.NewLayerID()

		assert.Equal(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("a moved vertex changes the digest", func(t *testing.T) {
		a := base()
		b := base()
		b.Features[1].Geometry = square(0.0100001, 0, 0.01)

		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("metadata changes the digest", func(t *testing.T) {
		a := base()
		b := base()
		b.Metadata.Name = "County Commissioner Districts"

		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("feature order is content", func(t *testing.T) {
		a := base()
		b := base()
		b.Features[0], b.Features[1] = b.Features[1], b.Features[0]

		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})
}
