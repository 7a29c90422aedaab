package objective

import "math"

// Vec2 is a point or gradient in the plane.
type Vec2 [2]float64

// Mat2 is a 2x2 matrix stored row-major.
type Mat2 [2][2]float64

// Objective is a twice-differentiable function of two variables.
// Implementations must be deterministic and free of side effects.
type Objective interface {
	// Value returns f at p
	Value(p Vec2) float64

	// Gradient returns the first partial derivatives at p
	Gradient(p Vec2) Vec2

	// Hessian returns the second partial derivatives at p
	Hessian(p Vec2) Mat2
}

// Norm returns the Euclidean length of v.
func (v Vec2) Norm() float64 {
	return math.Hypot(v[0], v[1])
}

// Sub returns v - w.
func (v Vec2) Sub(w Vec2) Vec2 {
	return Vec2{v[0] - w[0], v[1] - w[1]}
}

// IsFinite reports whether both components are finite numbers.
func (v Vec2) IsFinite() bool {
	return isFinite(v[0]) && isFinite(v[1])
}

// Det returns the determinant of m.
func (m Mat2) Det() float64 {
	return m[0][0]*m[1][1] - m[0][1]*m[1][0]
}

// AddDiagonal returns a copy of m with lambda added to both diagonal entries.
func (m Mat2) AddDiagonal(lambda float64) Mat2 {
	m[0][0] += lambda
	m[1][1] += lambda
	return m
}

// IsSymmetric reports whether the off-diagonal entries are equal.
func (m Mat2) IsSymmetric() bool {
	return m[0][1] == m[1][0]
}

// Solve returns s with m·s = b using the closed-form inverse.
// The caller is responsible for rejecting a (near) singular m first; det must
// be m.Det().
func (m Mat2) Solve(b Vec2, det float64) Vec2 {
	a, bb := m[0][0], m[0][1]
	c, d := m[1][0], m[1][1]
	return Vec2{
		(d*b[0] - bb*b[1]) / det,
		(a*b[1] - c*b[0]) / det,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
