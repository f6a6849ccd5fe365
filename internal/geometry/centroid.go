package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// WeightedCentroid computes the area-weighted centroid of all polygon rings
// across the given features. Degenerate inputs with no ring area (bare
// points, collapsed rings) fall back to the arithmetic mean of all vertices.
// Attribution and the proof pipeline must agree on centroids, so both call
// this one function.
func WeightedCentroid(features []Feature) (orb.Point, bool) {
	var sumX, sumY, totalArea float64
	for _, f := range features {
		if len(f.Geometry) == 0 {
			continue
		}
		c, area := planar.CentroidArea(f.Geometry)
		area = math.Abs(area)
		if area == 0 {
			continue
		}
		sumX += c[0] * area
		sumY += c[1] * area
		totalArea += area
	}
	if totalArea > 0 {
		return orb.Point{sumX / totalArea, sumY / totalArea}, true
	}

	// No measurable ring area anywhere: average the raw vertices.
	var vx, vy float64
	n := 0
	for _, f := range features {
		for _, poly := range f.Geometry {
			for _, ring := range poly {
				for _, pt := range ring {
					vx += pt[0]
					vy += pt[1]
					n++
				}
			}
		}
	}
	if n == 0 {
		return orb.Point{}, false
	}
	return orb.Point{vx / float64(n), vy / float64(n)}, true
}
