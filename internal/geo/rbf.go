// Package geo fits scattered-data surfaces through station values.
package geo

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point2D represents a 2D coordinate (latitude, longitude in degrees).
type Point2D struct {
	X float64
	Y float64
}

// ErrSingular is returned when the interpolation system has no unique
// solution, e.g. for coincident or (with a linear tail) collinear points.
var ErrSingular = errors.New("singular interpolation system")

// RBF is a thin-plate-spline radial basis interpolant with a polynomial tail
// of degree 1 (or 0 when fewer than 3 points are given). It reproduces the
// input values exactly at the input points and any linear field everywhere.
//
// The kernel is phi(r) = r^2 log r, the same default scipy uses.
type RBF struct {
	centers []Point2D
	shift   Point2D
	scale   float64
	weights []float64
	poly    []float64 // constant, x, y
}

// FitRBF solves for the interpolant through values at pts.
func FitRBF(pts []Point2D, values []float64) (*RBF, error) {
	n := len(pts)
	if n == 0 {
		return nil, fmt.Errorf("no points to interpolate")
	}
	if len(values) != n {
		return nil, fmt.Errorf("got %d values for %d points", len(values), n)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d is not finite", i)
		}
	}

	r := &RBF{}
	r.shift, r.scale = normalization(pts)
	r.centers = make([]Point2D, n)
	for i, p := range pts {
		r.centers[i] = r.normalize(p)
	}

	m := 3
	if n < 3 {
		m = 1
	}

	size := n + m
	a := mat.NewDense(size, size, nil)
	b := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, kernel(dist(r.centers[i], r.centers[j])))
		}
		mono := monomials(r.centers[i], m)
		for k, v := range mono {
			a.Set(i, n+k, v)
			a.Set(n+k, i, v)
		}
		b.SetVec(i, values[i])
	}

	var x mat.VecDense
	// gonum reports a mat.Condition error once the condition number passes
	// 1e16, which is numerically singular for float64.
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	for i := 0; i < size; i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrSingular
		}
	}

	r.weights = make([]float64, n)
	for i := range r.weights {
		r.weights[i] = x.AtVec(i)
	}
	r.poly = make([]float64, 3)
	for k := 0; k < m; k++ {
		r.poly[k] = x.AtVec(n + k)
	}
	return r, nil
}

// At evaluates the interpolant at p.
func (r *RBF) At(p Point2D) float64 {
	q := r.normalize(p)
	v := r.poly[0] + r.poly[1]*q.X + r.poly[2]*q.Y
	for i, c := range r.centers {
		v += r.weights[i] * kernel(dist(q, c))
	}
	return v
}

// normalization centers the points on their bounding box and scales them
// to unit half-width. With the linear tail the interpolant is invariant under
// this transform.
func normalization(pts []Point2D) (Point2D, float64) {
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	scale := math.Max(maxX-minX, maxY-minY) / 2
	if scale == 0 {
		scale = 1
	}
	return Point2D{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}, scale
}

func (r *RBF) normalize(p Point2D) Point2D {
	return Point2D{X: (p.X - r.shift.X) / r.scale, Y: (p.Y - r.shift.Y) / r.scale}
}

func monomials(p Point2D, m int) []float64 {
	if m == 1 {
		return []float64{1}
	}
	return []float64{1, p.X, p.Y}
}

func dist(a, b Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func kernel(r float64) float64 {
	if r == 0 {
		return 0
	}
	return r * r * math.Log(r)
}
