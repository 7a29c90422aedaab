package opt

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/odts/internal/objective"
)

// StartSearch picks a start point for the damped Newton run by a global search
// of the objective value over a box.
type StartSearch struct {
	Optimizer Optimizer
	Lower     objective.Vec2
	Upper     objective.Vec2
}

// NewStartSearch searches the box around the reference region of the stress
// surface, x in [-1, 2] and y in [0, 3], with a seeded mayfly run.
func NewStartSearch(seed int64) *StartSearch {
	return &StartSearch{
		Optimizer: NewMayfly(60, 30, seed),
		Lower:     objective.Vec2{-1, 0},
		Upper:     objective.Vec2{2, 3},
	}
}

// Find returns the best point found and its objective value.
func (s *StartSearch) Find(obj objective.Objective) (objective.Vec2, float64, error) {
	if obj == nil {
		return objective.Vec2{}, 0, fmt.Errorf("objective cannot be nil")
	}

	eval := func(p []float64) float64 {
		return obj.Value(objective.Vec2{p[0], p[1]})
	}

	best, cost, err := s.Optimizer.Run(eval, s.Lower[:], s.Upper[:])
	if err != nil {
		return objective.Vec2{}, 0, err
	}
	if len(best) != 2 {
		return objective.Vec2{}, 0, fmt.Errorf("optimizer returned %d parameters, want 2", len(best))
	}

	start := objective.Vec2{best[0], best[1]}
	if !start.IsFinite() {
		return objective.Vec2{}, 0, fmt.Errorf("optimizer returned non-finite start %v", start)
	}

	slog.Info("Start point found", "x", start[0], "y", start[1], "value", cost)
	return start, cost, nil
}
