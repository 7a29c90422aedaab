package objective

import "math"

// StressSurface is the fixed test objective
//
//	f(x, y) = (x-1)² + (y-2)² + 0.1·sin(10xy)
//
// with exact first and second derivatives.
type StressSurface struct{}

// NewStressSurface returns the test objective.
func NewStressSurface() StressSurface {
	return StressSurface{}
}

// Value evaluates f at p.
func (StressSurface) Value(p Vec2) float64 {
	x, y := p[0], p[1]
	return (x-1)*(x-1) + (y-2)*(y-2) + 0.1*math.Sin(10*x*y)
}

// Gradient returns (∂f/∂x, ∂f/∂y) at p.
func (StressSurface) Gradient(p Vec2) Vec2 {
	x, y := p[0], p[1]
	c := math.Cos(10 * x * y)
	return Vec2{
		2*(x-1) + y*c,
		2*(y-2) + x*c,
	}
}

// Hessian returns the matrix of second partials at p. The mixed partial is
// computed once and stored in both off-diagonal slots.
func (StressSurface) Hessian(p Vec2) Mat2 {
	x, y := p[0], p[1]
	t := 10 * x * y
	s, c := math.Sincos(t)
	off := c - t*s
	return Mat2{
		{2 - 10*y*y*s, off},
		{off, 2 - 10*x*x*s},
	}
}
