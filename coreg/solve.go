package coreg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidGeometry indicates missing or degenerate alignment inputs: zero
// width or height, or a zero-length diagonal. Reported before any solve is
// attempted.
var ErrInvalidGeometry = errors.New("invalid alignment geometry")

// ErrSingularSystem indicates that the three correspondence points are
// collinear, so the linear system has no unique solution.
var ErrSingularSystem = errors.New("singular correspondence system")

// PointPair is one (before, after) coordinate correspondence.
type PointPair struct {
	Before Point `json:"before"`
	After  Point `json:"after"`
}

// Correspondence is a set of exactly three point pairs relating the stage
// frame (before) to the sample frame (after). The before points must be
// affinely independent for Solve to succeed.
type Correspondence struct {
	V1 PointPair `json:"v1"`
	V2 PointPair `json:"v2"`
	V3 PointPair `json:"v3"`
}

// collinear reports whether the three before points span a degenerate
// triangle. The doubled triangle area is compared against the product of the
// two edge lengths, so the check is scale-invariant.
func (c Correspondence) collinear() bool {
	a, b, d := c.V1.Before, c.V2.Before, c.V3.Before
	area2 := (b.X-a.X)*(d.Y-a.Y) - (b.Y-a.Y)*(d.X-a.X)
	span := Distance(a, b) * Distance(a, d)
	if span == 0 {
		return true
	}
	return math.Abs(area2) < 1e-12*span
}

// Solve derives the affine transform mapping every before point onto its
// after point. It builds the exactly determined 6x6 system
//
//	[x y 1 0 0 0] [a b tx c d ty]^T = x'
//	[0 0 0 x y 1]                   = y'
//
// for the three pairs and solves it. Collinear before points yield
// ErrSingularSystem; the solve never returns a matrix with NaN or Inf
// entries.
func (c Correspondence) Solve() (AffineMatrix, error) {
	if c.collinear() {
		return AffineMatrix{}, fmt.Errorf("%w: before points are collinear", ErrSingularSystem)
	}

	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)

	for i, pair := range []PointPair{c.V1, c.V2, c.V3} {
		x, y := pair.Before.X, pair.Before.Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, pair.After.X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, pair.After.Y)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return AffineMatrix{}, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	m := AffineMatrix{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		Tx: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		Ty: params.AtVec(5),
	}
	if !m.IsFinite() {
		return AffineMatrix{}, fmt.Errorf("%w: solution is not finite", ErrSingularSystem)
	}
	return m, nil
}
