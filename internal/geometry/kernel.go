package geometry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geos"
)

// GeometryError reports malformed or degenerate input geometry encountered
// during a boolean operation. It is fatal for the affected layer only;
// callers record a failed run and move on, never abort the batch.
type GeometryError struct {
	Op     string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error in %s: %s", e.Op, e.Reason)
}

// IsGeometryError reports whether err is (or wraps) a GeometryError.
func IsGeometryError(err error) bool {
	var ge *GeometryError
	return errors.As(err, &ge)
}

// Overlap describes the intersection of two districts: its geodesic area and
// its isoperimetric compactness. Compactness is diagnostic only: a sliver
// (near 0) points at a shared-edge precision artifact, a compact blob at a
// genuine topology error.
type Overlap struct {
	AreaM2      float64
	Compactness float64
}

// GeosKernel answers boolean polygon questions through the GEOS library.
// Inputs and outputs are lon/lat orb geometries; areas come back geodesic so
// they share a metric with the rest of the package. GEOS reports internal
// failures by panicking; every exported method converts that to a
// GeometryError.
type GeosKernel struct{}

// NewKernel returns a GEOS-backed kernel.
func NewKernel() *GeosKernel {
	return &GeosKernel{}
}

// EnsureValid checks g for topological validity and attempts repair when it
// is invalid, discarding collapsed components. Geometry that is empty or
// stays invalid after repair is beyond use.
func (k *GeosKernel) EnsureValid(g orb.MultiPolygon) (out orb.MultiPolygon, err error) {
	defer recoverGeos("ensure_valid", &err)

	if len(g) == 0 {
		return nil, &GeometryError{Op: "ensure_valid", Reason: "empty multipolygon"}
	}

	geom, err := toGeos(g)
	if err != nil {
		return nil, err
	}
	defer geom.Destroy()

	if geom.IsEmpty() {
		return nil, &GeometryError{Op: "ensure_valid", Reason: "empty geometry"}
	}
	if geom.IsValid() {
		return g, nil
	}

	reason := geom.IsValidReason()
	repaired := geom.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed)
	if repaired == nil {
		return nil, &GeometryError{Op: "ensure_valid", Reason: reason}
	}
	defer repaired.Destroy()

	if repaired.IsEmpty() || !repaired.IsValid() {
		return nil, &GeometryError{Op: "ensure_valid", Reason: reason}
	}
	return toOrbMultiPolygon(repaired)
}

// OutsideRatio returns the fraction of the district's area lying outside the
// jurisdiction boundary, in [0, 1]. A district fully inside scores 0; one
// with no overlap at all scores 1.
func (k *GeosKernel) OutsideRatio(district, jurisdiction orb.MultiPolygon) (ratio float64, err error) {
	defer recoverGeos("outside_ratio", &err)

	districtArea := Area(district)
	if districtArea == 0 {
		return 0, &GeometryError{Op: "outside_ratio", Reason: "district has zero area"}
	}

	d, err := toGeos(district)
	if err != nil {
		return 0, err
	}
	defer d.Destroy()

	j, err := toGeos(jurisdiction)
	if err != nil {
		return 0, err
	}
	defer j.Destroy()

	outside := d.Difference(j)
	if outside == nil {
		return 0, &GeometryError{Op: "outside_ratio", Reason: "difference produced no geometry"}
	}
	defer outside.Destroy()

	if outside.IsEmpty() {
		return 0, nil
	}

	og, err := toOrb(outside)
	if err != nil {
		return 0, err
	}
	return Area(og) / districtArea, nil
}

// Intersect returns the overlap between two districts. A shared edge has
// zero area and comes back as the zero Overlap; so do fully disjoint inputs.
func (k *GeosKernel) Intersect(a, b orb.MultiPolygon) (ov Overlap, err error) {
	defer recoverGeos("intersect", &err)

	ga, err := toGeos(a)
	if err != nil {
		return Overlap{}, err
	}
	defer ga.Destroy()

	gb, err := toGeos(b)
	if err != nil {
		return Overlap{}, err
	}
	defer gb.Destroy()

	inter := ga.Intersection(gb)
	if inter == nil {
		return Overlap{}, &GeometryError{Op: "intersect", Reason: "intersection produced no geometry"}
	}
	defer inter.Destroy()

	if inter.IsEmpty() {
		return Overlap{}, nil
	}

	og, err := toOrb(inter)
	if err != nil {
		return Overlap{}, err
	}
	area := Area(og)
	if area == 0 {
		return Overlap{}, nil
	}
	return Overlap{AreaM2: area, Compactness: Compactness(og)}, nil
}

// UnionArea returns the geodesic area of the union of all districts.
func (k *GeosKernel) UnionArea(districts []orb.MultiPolygon) (area float64, err error) {
	defer recoverGeos("union_area", &err)

	if len(districts) == 0 {
		return 0, nil
	}

	var union *geos.Geom
	defer func() {
		if union != nil {
			union.Destroy()
		}
	}()

	for _, d := range districts {
		g, convErr := toGeos(d)
		if convErr != nil {
			return 0, convErr
		}
		if union == nil {
			union = g
			continue
		}
		next := union.Union(g)
		g.Destroy()
		union.Destroy()
		union = next
		if union == nil {
			return 0, &GeometryError{Op: "union_area", Reason: "union produced no geometry"}
		}
	}

	if union.IsEmpty() {
		return 0, nil
	}
	og, convErr := toOrb(union)
	if convErr != nil {
		return 0, convErr
	}
	return Area(og), nil
}

// Contains reports whether the point lies inside the region.
func (k *GeosKernel) Contains(region orb.MultiPolygon, pt orb.Point) bool {
	return planar.MultiPolygonContains(region, pt)
}

func recoverGeos(op string, err *error) {
	if r := recover(); r != nil {
		*err = &GeometryError{Op: op, Reason: fmt.Sprintf("%v", r)}
	}
}

func toGeos(g orb.Geometry) (*geos.Geom, error) {
	data, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil, &GeometryError{Op: "encode", Reason: err.Error()}
	}
	geom, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, &GeometryError{Op: "decode", Reason: err.Error()}
	}
	return geom, nil
}

func toOrb(g *geos.Geom) (orb.Geometry, error) {
	geom, err := geojson.UnmarshalGeometry([]byte(g.ToGeoJSON(-1)))
	if err != nil {
		return nil, &GeometryError{Op: "convert", Reason: err.Error()}
	}
	return geom.Geometry(), nil
}

func toOrbMultiPolygon(g *geos.Geom) (orb.MultiPolygon, error) {
	og, err := toOrb(g)
	if err != nil {
		return nil, err
	}
	switch t := og.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{t}, nil
	case orb.MultiPolygon:
		return t, nil
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, member := range t {
			switch m := member.(type) {
			case orb.Polygon:
				mp = append(mp, m)
			case orb.MultiPolygon:
				mp = append(mp, m...)
			}
		}
		if len(mp) == 0 {
			return nil, &GeometryError{Op: "convert", Reason: "repair left no polygonal geometry"}
		}
		return mp, nil
	default:
		return nil, &GeometryError{Op: "convert", Reason: fmt.Sprintf("unexpected geometry type %s", og.GeoJSONType())}
	}
}
