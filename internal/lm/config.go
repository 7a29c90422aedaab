package lm

import (
	"fmt"
	"math"
)

// Config holds the constants of a damped Newton run.
type Config struct {
	// InitialDamping is λ₀, the damping a new state starts with
	InitialDamping float64 `json:"initialDamping"`

	// DampingUp multiplies λ after a singular system or a step that did not improve f
	DampingUp float64 `json:"dampingUp"`

	// DampingDown multiplies λ after a step that improved f
	DampingDown float64 `json:"dampingDown"`

	// MaxDamping is the ceiling above which the run stops as OVERDAMPED
	MaxDamping float64 `json:"maxDamping"`

	// MaxIterations bounds the number of steps
	MaxIterations int `json:"maxIterations"`

	// Tolerance is the gradient-norm threshold for convergence
	Tolerance float64 `json:"tolerance"`

	// SingularTolerance is the |det| below which the damped system is treated as singular
	SingularTolerance float64 `json:"singularTolerance"`

	// ImprovementMargin is how much f must drop for a step to count as an improvement
	ImprovementMargin float64 `json:"improvementMargin"`
}

// DefaultConfig returns the reference constants.
func DefaultConfig() Config {
	return Config{
		InitialDamping:    0.01,
		DampingUp:         10,
		DampingDown:       0.1,
		MaxDamping:        1e8,
		MaxIterations:     50,
		Tolerance:         1e-12,
		SingularTolerance: 1e-12,
		ImprovementMargin: 1e-10,
	}
}

// Validate checks that every constant describes a usable run.
// MaxDamping may be below InitialDamping; such a run stops immediately.
func (c Config) Validate() error {
	if !positive(c.InitialDamping) {
		return &ValidationError{Field: "InitialDamping", Reason: "must be positive and finite"}
	}
	if !isFinite(c.DampingUp) || c.DampingUp <= 1 {
		return &ValidationError{Field: "DampingUp", Reason: "must be greater than 1"}
	}
	if !isFinite(c.DampingDown) || c.DampingDown <= 0 || c.DampingDown >= 1 {
		return &ValidationError{Field: "DampingDown", Reason: "must be in (0, 1)"}
	}
	if !positive(c.MaxDamping) {
		return &ValidationError{Field: "MaxDamping", Reason: "must be positive and finite"}
	}
	if c.MaxIterations <= 0 {
		return &ValidationError{Field: "MaxIterations", Reason: "must be positive"}
	}
	if !positive(c.Tolerance) {
		return &ValidationError{Field: "Tolerance", Reason: "must be positive and finite"}
	}
	if !positive(c.SingularTolerance) {
		return &ValidationError{Field: "SingularTolerance", Reason: "must be positive and finite"}
	}
	if !isFinite(c.ImprovementMargin) || c.ImprovementMargin < 0 {
		return &ValidationError{Field: "ImprovementMargin", Reason: "cannot be negative"}
	}
	return nil
}

// ValidationError reports a rejected configuration or start point.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func validateStart(x, y float64) error {
	if !isFinite(x) || !isFinite(y) {
		return &ValidationError{
			Field:  "Start",
			Reason: fmt.Sprintf("must be finite, got (%v, %v)", x, y),
		}
	}
	return nil
}

func positive(f float64) bool {
	return isFinite(f) && f > 0
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
