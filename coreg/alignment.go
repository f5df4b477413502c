package coreg

import (
	"fmt"
)

// RectangularAlignment describes a width x height rectangular sample placed
// on an instrument stage, specified by the absolute coordinates of its
// upper-left and lower-right corners. All values are in meters.
//
// The affine transform from stage to sample coordinates is computed lazily
// and cached; any setter invalidates the cache so edited corners never reuse
// a stale transform. The type is not safe for concurrent mutation; each
// measurement entry owns its own alignment.
type RectangularAlignment struct {
	width, height float64
	upperLeft     Point
	lowerRight    Point

	transform *AffineMatrix // cached, nil until first Transform call
}

// NewRectangularAlignment validates the sample geometry and returns an
// alignment. Zero or negative width/height and coincident corners are
// rejected with ErrInvalidGeometry.
func NewRectangularAlignment(width, height float64, upperLeft, lowerRight Point) (*RectangularAlignment, error) {
	a := &RectangularAlignment{
		width:      width,
		height:     height,
		upperLeft:  upperLeft,
		lowerRight: lowerRight,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *RectangularAlignment) validate() error {
	if a.width <= 0 || a.height <= 0 {
		return fmt.Errorf("%w: width and height must be positive (got %g x %g)",
			ErrInvalidGeometry, a.width, a.height)
	}
	if Distance(a.upperLeft, a.lowerRight) == 0 {
		return fmt.Errorf("%w: upper-left and lower-right corners coincide", ErrInvalidGeometry)
	}
	return nil
}

// Width returns the sample width in meters
func (a *RectangularAlignment) Width() float64 { return a.width }

// Height returns the sample height in meters
func (a *RectangularAlignment) Height() float64 { return a.height }

// UpperLeft returns the absolute upper-left corner
func (a *RectangularAlignment) UpperLeft() Point { return a.upperLeft }

// LowerRight returns the absolute lower-right corner
func (a *RectangularAlignment) LowerRight() Point { return a.lowerRight }

// SetCorners replaces the corner coordinates and discards the cached transform
func (a *RectangularAlignment) SetCorners(upperLeft, lowerRight Point) {
	a.upperLeft = upperLeft
	a.lowerRight = lowerRight
	a.transform = nil
}

// SetSize replaces the sample dimensions and discards the cached transform
func (a *RectangularAlignment) SetSize(width, height float64) {
	a.width = width
	a.height = height
	a.transform = nil
}

// LowerLeft derives the absolute lower-left corner from the two known
// corners and the sample dimensions, assuming a right angle at the
// upper-left corner:
//
//	ab = lowerRight - upperLeft, d = |ab|
//	dy = h*(ab.x*w - ab.y*h) / d^2
//	dx = h*(ab.y*w + ab.x*h) / d^2
//	lowerLeft = upperLeft + (dx, -dy)
//
// The result is exact only when the supplied corners truly describe a
// width x height rectangle; no consistency check is performed on the
// diagonal length, so callers validate the geometry upstream.
func (a *RectangularAlignment) LowerLeft() (Point, error) {
	if err := a.validate(); err != nil {
		return Point{}, err
	}
	abX := a.lowerRight.X - a.upperLeft.X
	abY := a.lowerRight.Y - a.upperLeft.Y
	d2 := abX*abX + abY*abY

	dy := a.height * (abX*a.width - abY*a.height) / d2
	dx := a.height * (abY*a.width + abX*a.height) / d2

	return Point{X: a.upperLeft.X + dx, Y: a.upperLeft.Y - dy}, nil
}

// Correspondence builds the three-point correspondence that fixes the sample
// frame: the origin sits at the rectangle's center, with the upper-left
// corner at (-w/2, h/2), the lower-left at (-w/2, -h/2) and the lower-right
// at (w/2, -h/2).
func (a *RectangularAlignment) Correspondence() (Correspondence, error) {
	lowerLeft, err := a.LowerLeft()
	if err != nil {
		return Correspondence{}, err
	}
	w, h := a.width, a.height
	return Correspondence{
		V1: PointPair{Before: a.upperLeft, After: Point{X: -w / 2, Y: h / 2}},
		V2: PointPair{Before: lowerLeft, After: Point{X: -w / 2, Y: -h / 2}},
		V3: PointPair{Before: a.lowerRight, After: Point{X: w / 2, Y: -h / 2}},
	}, nil
}

// Transform returns the stage-to-sample affine transform, deriving and
// caching it on first use. The cache is discarded whenever a corner or the
// sample size changes.
func (a *RectangularAlignment) Transform() (AffineMatrix, error) {
	if a.transform != nil {
		return *a.transform, nil
	}
	corr, err := a.Correspondence()
	if err != nil {
		return AffineMatrix{}, err
	}
	m, err := corr.Solve()
	if err != nil {
		return AffineMatrix{}, err
	}
	a.transform = &m
	return m, nil
}

// ToRelative maps an absolute stage point into the sample frame
func (a *RectangularAlignment) ToRelative(p Point) (Point, error) {
	m, err := a.Transform()
	if err != nil {
		return Point{}, err
	}
	return TransformPoint(p, m), nil
}

// ToAbsolute maps a sample-frame point back onto the stage
func (a *RectangularAlignment) ToAbsolute(p Point) (Point, error) {
	m, err := a.Transform()
	if err != nil {
		return Point{}, err
	}
	return TransformPoint(p, InvertMatrix(m)), nil
}

// Center returns the rectangle's centroid on the stage. It uses the area
// centroid of the four corners when the lower-left corner can be derived and
// falls back to the diagonal midpoint otherwise.
func (a *RectangularAlignment) Center() Point {
	lowerLeft, err := a.LowerLeft()
	if err != nil {
		return Point{
			X: (a.upperLeft.X + a.lowerRight.X) / 2,
			Y: (a.upperLeft.Y + a.lowerRight.Y) / 2,
		}
	}
	// Fourth corner closes the parallelogram: ur = ul + lr - ll.
	upperRight := Point{
		X: a.upperLeft.X + a.lowerRight.X - lowerLeft.X,
		Y: a.upperLeft.Y + a.lowerRight.Y - lowerLeft.Y,
	}
	return QuadCentroid(a.upperLeft, lowerLeft, a.lowerRight, upperRight)
}

// CenterOnPoints returns a copy of the alignment translated so that the
// sample center coincides with the centroid of the measured stage points.
// The input alignment is not modified and the copy's transform cache starts
// empty. With no points the alignment is returned unchanged.
func CenterOnPoints(a *RectangularAlignment, points []Point) *RectangularAlignment {
	shifted := &RectangularAlignment{
		width:      a.width,
		height:     a.height,
		upperLeft:  a.upperLeft,
		lowerRight: a.lowerRight,
	}
	if len(points) == 0 {
		return shifted
	}
	centroid := PointCentroid(points)
	center := a.Center()
	move := Translation(centroid.X-center.X, centroid.Y-center.Y)

	shifted.upperLeft = TransformPoint(a.upperLeft, move)
	shifted.lowerRight = TransformPoint(a.lowerRight, move)
	return shifted
}
