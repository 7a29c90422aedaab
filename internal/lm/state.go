package lm

import "github.com/cwbudde/odts/internal/objective"

// Status labels the engine's view of a run.
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusConverged  Status = "CONVERGED"
	StatusDampingUp  Status = "DAMPING_UP"
	StatusOverdamped Status = "OVERDAMPED"
)

// Terminal reports whether no further steps may be taken from s.
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusOverdamped
}

// State is the mutable estimate of one run. It is owned by the caller and
// changed only through Engine.Step and Engine.Run.
type State struct {
	Position objective.Vec2
	Gradient objective.Vec2

	// Hessian is the undamped Hessian used by the most recent step
	Hessian objective.Mat2

	Damping   float64
	Iteration int
	Status    Status

	// Residual is the gradient norm at Position
	Residual float64

	// Value is f at Position
	Value float64
}

// Snapshot copies the fields recorded in the trace.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Iteration: s.Iteration,
		X:         s.Position[0],
		Y:         s.Position[1],
		GradX:     s.Gradient[0],
		GradY:     s.Gradient[1],
		Residual:  s.Residual,
		Status:    s.Status,
		Damping:   s.Damping,
		Value:     s.Value,
	}
}
