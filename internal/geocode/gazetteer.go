package geocode

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"tessera/internal/geometry"
	"tessera/internal/registry"
)

// Beyond this distance the nearest centroid is some other part of the world,
// not an answer.
const maxCentroidDistanceM = 100_000

type gazetteerPoint struct {
	pt  orb.Point
	idx int
}

func (g gazetteerPoint) Point() orb.Point { return g.pt }

// Gazetteer reverse-geocodes against the registry's jurisdiction centroids:
// nearest centroid in coordinate space, then a geodesic distance gate.
// Fully offline and deterministic, which is what batch resumability and
// air-gapped runs need.
type Gazetteer struct {
	tree    *quadtree.Quadtree
	entries []registry.CentroidEntry
}

// NewGazetteer indexes the centroid directory. An empty directory yields a
// gazetteer that answers nothing.
func NewGazetteer(dir *registry.CentroidDirectory) *Gazetteer {
	entries := dir.Entries()
	tree := quadtree.New(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}})
	for i, e := range entries {
		// Add only fails for points outside the world bound, which the
		// registry loader already rejected.
		_ = tree.Add(gazetteerPoint{pt: orb.Point{e.Lon, e.Lat}, idx: i})
	}
	return &Gazetteer{tree: tree, entries: entries}
}

// ReverseGeocode implements Geocoder.
func (g *Gazetteer) ReverseGeocode(_ context.Context, pt orb.Point) (*Result, error) {
	if len(g.entries) == 0 {
		return nil, nil
	}
	nearest := g.tree.Find(pt)
	if nearest == nil {
		return nil, nil
	}
	gp := nearest.(gazetteerPoint)
	entry := g.entries[gp.idx]

	distance := geometry.Distance(pt, gp.Point())
	if distance > maxCentroidDistanceM {
		return nil, nil
	}
	return &Result{
		Jurisdiction: entry.Jurisdiction,
		Source:       "gazetteer",
		DistanceM:    distance,
	}, nil
}
