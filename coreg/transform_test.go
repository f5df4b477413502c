package coreg

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func pointsAlmostEqual(p1, p2 Point) bool {
	return almostEqual(p1.X, p2.X) && almostEqual(p1.Y, p2.Y)
}

func rotationDeg(degrees float64) AffineMatrix {
	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return AffineMatrix{A: cos, B: -sin, C: sin, D: cos}
}

func TestIdentity(t *testing.T) {
	m := Identity()
	p := Point{X: 0.01, Y: -0.02}

	result := TransformPoint(p, m)
	if !pointsAlmostEqual(result, p) {
		t.Errorf("Identity transform changed point: got %v, want %v", result, p)
	}
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name     string
		point    Point
		matrix   AffineMatrix
		expected Point
	}{
		{
			name:     "identity",
			point:    Point{X: 5, Y: 10},
			matrix:   Identity(),
			expected: Point{X: 5, Y: 10},
		},
		{
			name:     "translation",
			point:    Point{X: 5, Y: 10},
			matrix:   Translation(3, -2),
			expected: Point{X: 8, Y: 8},
		},
		{
			name:     "90 degree rotation",
			point:    Point{X: 1, Y: 0},
			matrix:   rotationDeg(90),
			expected: Point{X: 0, Y: 1},
		},
		{
			name:     "180 degree rotation",
			point:    Point{X: 1, Y: 2},
			matrix:   rotationDeg(180),
			expected: Point{X: -1, Y: -2},
		},
		{
			name:     "scale",
			point:    Point{X: 2, Y: 3},
			matrix:   AffineMatrix{A: 2, D: 0.5},
			expected: Point{X: 4, Y: 1.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TransformPoint(tt.point, tt.matrix)
			if !pointsAlmostEqual(result, tt.expected) {
				t.Errorf("TransformPoint() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTransformPoints(t *testing.T) {
	points := []Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	m := Translation(10, 20)

	results := TransformPoints(points, m)
	if len(results) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(results))
	}
	for i, p := range points {
		want := Point{X: p.X + 10, Y: p.Y + 20}
		if !pointsAlmostEqual(results[i], want) {
			t.Errorf("point %d: got %v, want %v", i, results[i], want)
		}
	}
}

func TestInvertMatrix(t *testing.T) {
	tests := []struct {
		name   string
		matrix AffineMatrix
	}{
		{"identity", Identity()},
		{"translation", Translation(5, -3)},
		{"rotation", rotationDeg(37)},
		{"scale", AffineMatrix{A: 2, D: 3}},
		{"general", AffineMatrix{A: 0.8, B: -0.6, Tx: 0.01, C: 0.6, D: 0.8, Ty: -0.02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := InvertMatrix(tt.matrix)
			p := Point{X: 0.0125, Y: -0.0075}

			roundTrip := TransformPoint(TransformPoint(p, tt.matrix), inv)
			if !pointsAlmostEqual(roundTrip, p) {
				t.Errorf("inverse round trip: got %v, want %v", roundTrip, p)
			}
		})
	}
}

func TestInvertMatrix_Singular(t *testing.T) {
	singular := AffineMatrix{A: 1, B: 2, C: 2, D: 4}
	inv := InvertMatrix(singular)
	if inv != Identity() {
		t.Errorf("singular matrix inverse = %v, want identity", inv)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   Point
		expected float64
	}{
		{"same point", Point{X: 1, Y: 1}, Point{X: 1, Y: 1}, 0},
		{"unit x", Point{X: 0, Y: 0}, Point{X: 1, Y: 0}, 1},
		{"3-4-5 triangle", Point{X: 0, Y: 0}, Point{X: 3, Y: 4}, 5},
		{"negative coords", Point{X: -1, Y: -1}, Point{X: 2, Y: 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := Distance(tt.p1, tt.p2); !almostEqual(d, tt.expected) {
				t.Errorf("Distance() = %f, want %f", d, tt.expected)
			}
		})
	}
}

func TestIsFinite(t *testing.T) {
	if !Identity().IsFinite() {
		t.Error("identity should be finite")
	}
	if (AffineMatrix{A: math.NaN()}).IsFinite() {
		t.Error("NaN entry should not be finite")
	}
	if (AffineMatrix{Ty: math.Inf(1)}).IsFinite() {
		t.Error("Inf entry should not be finite")
	}
}
