package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"tessera/internal/geometry"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

const indexFile = "index.yaml"

type indexSchema struct {
	Jurisdictions []struct {
		Jurisdiction string  `yaml:"jurisdiction"`
		Name         string  `yaml:"name"`
		File         string  `yaml:"file"`
		LandAreaM2   float64 `yaml:"land_area_m2"`
		WaterAreaM2  float64 `yaml:"water_area_m2"`
		Vintage      string  `yaml:"vintage"`
	} `yaml:"jurisdictions"`
}

type indexEntry struct {
	name        string
	file        string
	landAreaM2  float64
	waterAreaM2 float64
	vintage     string
}

// FileAuthority serves boundaries from a directory holding an index.yaml and
// one GeoJSON file per jurisdiction. The index is read and validated once at
// construction; geometry files load lazily on first request and stay cached.
// Returned Jurisdictions are shared across callers and must be treated as
// read-only.
type FileAuthority struct {
	dir     string
	entries map[id.JurisdictionID]indexEntry

	mu     sync.RWMutex
	loaded map[id.JurisdictionID]*Jurisdiction
}

// NewFileAuthority reads and validates the boundary index. A directory
// without an index is a misconfigured deployment, not an empty authority.
func NewFileAuthority(dir string) (*FileAuthority, error) {
	path := filepath.Join(dir, indexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("boundary: read index %s: %w", path, err)
	}

	var schema indexSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("boundary: decode index %s: %w", path, err)
	}

	entries := make(map[id.JurisdictionID]indexEntry, len(schema.Jurisdictions))
	for i, rec := range schema.Jurisdictions {
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("boundary: index[%d]: %w", i, err)
		}
		if strings.TrimSpace(rec.File) == "" {
			return nil, fmt.Errorf("boundary: index[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "boundary file is required"))
		}
		if rec.LandAreaM2 <= 0 {
			return nil, fmt.Errorf("boundary: index[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "land area must be positive"))
		}
		if rec.WaterAreaM2 < 0 {
			return nil, fmt.Errorf("boundary: index[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "water area cannot be negative"))
		}
		if _, dup := entries[jid]; dup {
			return nil, fmt.Errorf("boundary: index[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, "duplicate jurisdiction "+jid.String()))
		}
		entries[jid] = indexEntry{
			name:        rec.Name,
			file:        rec.File,
			landAreaM2:  rec.LandAreaM2,
			waterAreaM2: rec.WaterAreaM2,
			vintage:     rec.Vintage,
		}
	}

	return &FileAuthority{
		dir:     dir,
		entries: entries,
		loaded:  make(map[id.JurisdictionID]*Jurisdiction, len(entries)),
	}, nil
}

// Len returns the number of jurisdictions the authority covers.
func (a *FileAuthority) Len() int { return len(a.entries) }

// Boundary implements Authority.
func (a *FileAuthority) Boundary(_ context.Context, jid id.JurisdictionID) (*Jurisdiction, error) {
	a.mu.RLock()
	cached, ok := a.loaded[jid]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entry, ok := a.entries[jid]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "jurisdiction not covered by boundary authority")
	}

	path := filepath.Join(a.dir, entry.file)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("boundary: read %s: %w", path, err)
	}
	mp, err := decodeBoundary(data)
	if err != nil {
		return nil, fmt.Errorf("boundary: %s: %w", path, err)
	}
	if len(mp) == 0 || geometry.Area(mp) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			"boundary authority holds degenerate geometry for "+jid.String())
	}

	j := &Jurisdiction{
		ID:          jid,
		Name:        entry.name,
		Geometry:    mp,
		LandAreaM2:  entry.landAreaM2,
		WaterAreaM2: entry.waterAreaM2,
		Vintage:     entry.vintage,
	}

	// Two goroutines may race to load the same boundary; both produce the
	// same value, so last write wins harmlessly.
	a.mu.Lock()
	a.loaded[jid] = j
	a.mu.Unlock()
	return j, nil
}

// decodeBoundary accepts a FeatureCollection, a single Feature, or a bare
// polygonal geometry and flattens it into one MultiPolygon.
func decodeBoundary(data []byte) (orb.MultiPolygon, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		var mp orb.MultiPolygon
		for _, f := range fc.Features {
			mp = appendPolygons(mp, f.Geometry)
		}
		return mp, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		return appendPolygons(nil, f.Geometry), nil
	case "Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		return appendPolygons(nil, g.Geometry()), nil
	default:
		return nil, fmt.Errorf("unsupported geojson type %q", probe.Type)
	}
}

func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch t := g.(type) {
	case orb.Polygon:
		return append(mp, t)
	case orb.MultiPolygon:
		return append(mp, t...)
	case orb.Collection:
		for _, member := range t {
			mp = appendPolygons(mp, member)
		}
	}
	return mp
}
