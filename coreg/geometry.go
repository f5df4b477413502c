package coreg

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PointCentroid returns the centroid of a set of points, or the zero point
// for an empty set.
func PointCentroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	c, _ := planar.CentroidArea(mp)
	return Point{X: c[0], Y: c[1]}
}

// QuadCentroid returns the area centroid of the quadrilateral through the
// four corners given in ring order.
func QuadCentroid(p1, p2, p3, p4 Point) Point {
	ring := orb.Ring{
		{p1.X, p1.Y},
		{p2.X, p2.Y},
		{p3.X, p3.Y},
		{p4.X, p4.Y},
		{p1.X, p1.Y},
	}
	c, area := planar.CentroidArea(orb.Polygon{ring})
	if area == 0 {
		// Degenerate quad: fall back to the vertex mean.
		return PointCentroid([]Point{p1, p2, p3, p4})
	}
	return Point{X: c[0], Y: c[1]}
}
