package objective

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CheckSettings controls the finite-difference comparison.
type CheckSettings struct {
	// GradientStep is the central-difference step for the gradient
	GradientStep float64

	// HessianStep is the step for the second-order stencil
	HessianStep float64

	// GradientTol is the largest accepted absolute deviation per gradient component
	GradientTol float64

	// HessianTol is the largest accepted absolute deviation per Hessian entry
	HessianTol float64
}

// DefaultCheckSettings returns steps and tolerances that hold for the stress
// surface over the region the optimizer visits.
func DefaultCheckSettings() CheckSettings {
	return CheckSettings{
		GradientStep: 1e-6,
		HessianStep:  1e-4,
		GradientTol:  1e-6,
		HessianTol:   1e-3,
	}
}

// DerivativeReport describes how far the analytic derivatives are from their
// numerical approximations at one point.
type DerivativeReport struct {
	Point            Vec2    `json:"point"`
	Analytic         Vec2    `json:"analytic_gradient"`
	Numeric          Vec2    `json:"numeric_gradient"`
	GradientError    float64 `json:"gradient_error"`
	AnalyticHessian  Mat2    `json:"analytic_hessian"`
	NumericHessian   Mat2    `json:"numeric_hessian"`
	HessianError     float64 `json:"hessian_error"`
	HessianSymmetric bool    `json:"hessian_symmetric"`
	OK               bool    `json:"ok"`
}

// CheckDerivatives compares obj's analytic gradient and Hessian at p against
// central finite differences of obj.Value.
func CheckDerivatives(obj Objective, p Vec2, settings CheckSettings) (DerivativeReport, error) {
	if obj == nil {
		return DerivativeReport{}, fmt.Errorf("objective cannot be nil")
	}
	if !p.IsFinite() {
		return DerivativeReport{}, fmt.Errorf("point must be finite, got (%v, %v)", p[0], p[1])
	}
	if settings.GradientStep <= 0 || settings.HessianStep <= 0 {
		return DerivativeReport{}, fmt.Errorf("finite-difference steps must be positive")
	}

	f := func(x []float64) float64 {
		return obj.Value(Vec2{x[0], x[1]})
	}
	x := []float64{p[0], p[1]}

	numGrad := fd.Gradient(nil, f, x, &fd.Settings{
		Formula: fd.Central,
		Step:    settings.GradientStep,
	})

	var numHess mat.SymDense
	fd.Hessian(&numHess, f, x, &fd.Settings{
		Formula: fd.Central,
		Step:    settings.HessianStep,
	})

	grad := obj.Gradient(p)
	hess := obj.Hessian(p)

	report := DerivativeReport{
		Point:            p,
		Analytic:         grad,
		Numeric:          Vec2{numGrad[0], numGrad[1]},
		GradientError:    floats.Distance(grad[:], numGrad, math.Inf(1)),
		AnalyticHessian:  hess,
		HessianSymmetric: hess.IsSymmetric(),
	}

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			report.NumericHessian[i][j] = numHess.At(i, j)
			report.HessianError = math.Max(report.HessianError, math.Abs(hess[i][j]-numHess.At(i, j)))
		}
	}

	report.OK = report.GradientError <= settings.GradientTol &&
		report.HessianError <= settings.HessianTol &&
		report.HessianSymmetric
	return report, nil
}
