package lm

import "log/slog"

// Reason explains why a run stopped.
type Reason string

const (
	// ReasonNone means the run should continue
	ReasonNone            Reason = ""
	ReasonConverged       Reason = "converged"
	ReasonOverdamped      Reason = "overdamped"
	ReasonBudgetExhausted Reason = "budget_exhausted"
	ReasonCancelled       Reason = "cancelled"

	// ReasonAborted means an observer failed and the run was cut short
	ReasonAborted Reason = "aborted"
)

// Policy decides after every step whether a run continues, converges or aborts.
type Policy struct {
	// Tolerance is the residual below which the run converges
	Tolerance float64

	// MaxDamping is the damping above which the run is overdamped
	MaxDamping float64

	// MaxIterations is the step budget
	MaxIterations int
}

// NewPolicy derives the termination policy from a run configuration.
func NewPolicy(cfg Config) Policy {
	return Policy{
		Tolerance:     cfg.Tolerance,
		MaxDamping:    cfg.MaxDamping,
		MaxIterations: cfg.MaxIterations,
	}
}

// Check inspects s, whose Residual must already describe its Position, and
// moves it to a terminal status when a stopping rule fires. Running out of
// budget leaves the status as the last step set it.
func (p Policy) Check(s *State) Reason {
	switch {
	case s.Residual < p.Tolerance:
		s.Status = StatusConverged
		slog.Debug("Residual below tolerance",
			"iteration", s.Iteration,
			"residual", s.Residual,
			"tolerance", p.Tolerance,
		)
		return ReasonConverged

	case s.Damping > p.MaxDamping:
		s.Status = StatusOverdamped
		slog.Debug("Damping above ceiling",
			"iteration", s.Iteration,
			"damping", s.Damping,
			"max_damping", p.MaxDamping,
		)
		return ReasonOverdamped

	case s.Iteration >= p.MaxIterations:
		slog.Debug("Iteration budget exhausted",
			"iteration", s.Iteration,
			"residual", s.Residual,
		)
		return ReasonBudgetExhausted
	}

	return ReasonNone
}
