package opt

// Optimizer defines a derivative-free global search over a box.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper].
	// The dimensionality is len(lower); lower and upper must have equal length.
	// Returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
