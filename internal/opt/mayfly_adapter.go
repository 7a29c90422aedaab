package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population mayfly accepts.
const MinPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize is raised to MinPopulation if smaller.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// Mayfly only takes scalar bounds, so the search runs on the unit cube and
// positions are mapped onto [lower, upper] per dimension.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("bounds must be non-empty and of equal length, got %d and %d", len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] < upper[i]) {
			return nil, 0, fmt.Errorf("empty bounds in dimension %d: [%g, %g]", i, lower[i], upper[i])
		}
	}

	scale := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + clamp01(u[i])*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(scale(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly search failed: %w", err)
	}

	best := scale(result.GlobalBest.Position)
	return best, eval(best), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
