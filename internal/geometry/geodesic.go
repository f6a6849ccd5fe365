package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Area returns the geodesic area of g in square meters. Every ratio the
// prover computes uses this function for both numerator and denominator;
// mixing planar and geodesic area in one ratio biases the result.
func Area(g orb.Geometry) float64 {
	return math.Abs(geo.Area(g))
}

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

// Perimeter returns the geodesic boundary length of a polygonal geometry in
// meters.
func Perimeter(g orb.Geometry) float64 {
	return geo.Length(g)
}

// Compactness returns the isoperimetric quotient 4πA/P² in (0, 1]. A circle
// scores 1; an elongated sliver approaches 0. Overlap shapes are classified
// with this: low compactness suggests a shared-edge precision artifact, high
// compactness a genuine topology error or duplicate data.
func Compactness(g orb.Geometry) float64 {
	p := Perimeter(g)
	if p == 0 {
		return 0
	}
	return 4 * math.Pi * Area(g) / (p * p)
}
