package geometry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"
)

// Fingerprint returns a stable hex digest of a layer's content: its metadata
// and every feature's name and geometry, in order. The layer's submission id
// is deliberately excluded so the same content resubmitted under a new id
// hashes the same, which is what lets an interrupted batch skip layers it
// has already judged.
func Fingerprint(layer CandidateLayer) string {
	h := sha256.New()
	writeField(h, "name", layer.Metadata.Name)
	writeField(h, "copyright", layer.Metadata.Copyright)
	writeField(h, "description", layer.Metadata.Description)
	writeField(h, "source_url", layer.Metadata.SourceURL)
	writeField(h, "organization", string(layer.Metadata.Organization))
	writeField(h, "srid", fmt.Sprintf("%d", layer.Metadata.SpatialRef))
	writeField(h, "declared_count", fmt.Sprintf("%d", layer.Metadata.DeclaredCount))
	for _, f := range layer.Features {
		writeField(h, "feature", f.Name)
		// geojson geometry marshaling is deterministic for a given
		// coordinate slice, so the digest is stable across runs.
		data, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			writeField(h, "geometry_error", err.Error())
			continue
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, key, value string) {
	io.WriteString(w, key)
	w.Write([]byte{0})
	io.WriteString(w, value)
	w.Write([]byte{0})
}
