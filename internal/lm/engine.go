package lm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/odts/internal/objective"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrSingularSystem marks a step skipped because the damped Hessian was
	// numerically singular. It is recovered inside Step by raising the damping.
	ErrSingularSystem = errors.New("damped hessian is singular")

	// ErrTerminal is returned by Step for a state that already converged or
	// was declared overdamped.
	ErrTerminal = errors.New("state is terminal")
)

// StepResult describes one attempted damped Newton step.
type StepResult struct {
	// Taken is false when the system was singular and the position kept
	Taken bool

	// Improved is true when f dropped by more than the improvement margin
	Improved bool

	// Det is the determinant of the damped Hessian
	Det float64

	// Before and After are f at the old and new position
	Before float64
	After  float64

	// Cause is ErrSingularSystem when no step was taken
	Cause error
}

// Engine runs damped Newton (Levenberg–Marquardt) iterations on a fixed
// objective. It holds no per-run data, so one Engine may drive any number of
// states, including concurrently.
type Engine struct {
	cfg    Config
	obj    objective.Objective
	policy Policy
}

// NewEngine validates cfg and returns an engine minimizing obj.
func NewEngine(obj objective.Objective, cfg Config) (*Engine, error) {
	if obj == nil {
		return nil, &ValidationError{Field: "Objective", Reason: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		obj:    obj,
		policy: NewPolicy(cfg),
	}, nil
}

// Config returns the engine's constants.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewState creates the state for a run starting at start with the configured
// initial damping.
func (e *Engine) NewState(start objective.Vec2) (*State, error) {
	if err := validateStart(start[0], start[1]); err != nil {
		return nil, err
	}
	s := &State{
		Position: start,
		Damping:  e.cfg.InitialDamping,
		Status:   StatusRunning,
	}
	e.refresh(s)
	return s, nil
}

// Step attempts one damped Newton step on s.
//
// The step is applied whenever the damped system is solvable, even when it
// makes f worse; the damping only encodes how far the next step trusts the
// quadratic model. A singular system raises the damping and keeps the
// position. Both outcomes consume one iteration.
func (e *Engine) Step(s *State) (StepResult, error) {
	if s == nil {
		return StepResult{}, fmt.Errorf("state cannot be nil")
	}
	if s.Status.Terminal() {
		return StepResult{}, fmt.Errorf("step at iteration %d with status %s: %w", s.Iteration, s.Status, ErrTerminal)
	}

	s.Gradient = e.obj.Gradient(s.Position)
	s.Hessian = e.obj.Hessian(s.Position)

	damped := s.Hessian.AddDiagonal(s.Damping)
	det := damped.Det()

	s.Iteration++

	if math.Abs(det) < e.cfg.SingularTolerance {
		s.Damping *= e.cfg.DampingUp
		s.Status = StatusDampingUp
		slog.Debug("Singular damped system, raising damping",
			"iteration", s.Iteration,
			"det", det,
			"damping", s.Damping,
		)
		return StepResult{Det: det, Cause: ErrSingularSystem}, nil
	}

	step := damped.Solve(s.Gradient, det)
	before := e.obj.Value(s.Position)
	s.Position = s.Position.Sub(step)
	after := e.obj.Value(s.Position)
	s.Status = StatusRunning

	improved := after < before-e.cfg.ImprovementMargin
	if improved {
		s.Damping *= e.cfg.DampingDown
	} else {
		s.Damping *= e.cfg.DampingUp
	}

	slog.Debug("Damped Newton step",
		"iteration", s.Iteration,
		"x", s.Position[0],
		"y", s.Position[1],
		"f_before", before,
		"f_after", after,
		"improved", improved,
		"damping", s.Damping,
	)

	return StepResult{
		Taken:    true,
		Improved: improved,
		Det:      det,
		Before:   before,
		After:    after,
	}, nil
}

// Run iterates s until the termination policy fires or ctx is done. The
// policy is checked once before the first step, so a state that already
// satisfies a stopping rule takes no steps. obs, if not nil, receives one
// snapshot per iteration (including iteration 0) and the final summary.
//
// Non-convergence is not an error: it is reported through the summary. Run
// returns an error only for observer failures or cancellation, and still
// returns the summary of the state reached so far. An observer failure ends
// the run with reason aborted; Finish still receives that summary.
func (e *Engine) Run(ctx context.Context, s *State, obs Observer) (Summary, error) {
	if s == nil {
		return Summary{}, fmt.Errorf("state cannot be nil")
	}
	if obs == nil {
		obs = Observers()
	}

	start := time.Now()
	e.refresh(s)
	reason := e.policy.Check(s)

	if err := obs.Observe(s.Snapshot()); err != nil {
		return e.abort(s, start, obs, err)
	}

	var runErr error
	for reason == ReasonNone {
		if err := ctx.Err(); err != nil {
			reason = ReasonCancelled
			runErr = err
			break
		}

		if _, err := e.Step(s); err != nil {
			return e.summarize(s, reason, start), err
		}

		e.refresh(s)
		reason = e.policy.Check(s)

		if err := obs.Observe(s.Snapshot()); err != nil {
			return e.abort(s, start, obs, err)
		}
	}

	summary := e.summarize(s, reason, start)

	slog.Info("Optimization finished",
		"status", summary.Status,
		"reason", summary.Reason,
		"iterations", summary.Iterations,
		"x", summary.OptimalX,
		"y", summary.OptimalY,
		"f", summary.FOptimal,
		"residual", summary.Residual,
		"damping", summary.Damping,
	)

	if err := obs.Finish(summary); err != nil {
		return summary, fmt.Errorf("finish run: %w", err)
	}
	return summary, runErr
}

// abort ends a run whose observer failed at the current iteration. The
// partial summary is still handed to Finish so sinks that kept working can
// record the last known state.
func (e *Engine) abort(s *State, start time.Time, obs Observer, cause error) (Summary, error) {
	summary := e.summarize(s, ReasonAborted, start)
	err := fmt.Errorf("observe iteration %d: %w", s.Iteration, cause)

	slog.Warn("Optimization aborted",
		"iteration", s.Iteration,
		"x", summary.OptimalX,
		"y", summary.OptimalY,
		"error", cause,
	)

	if ferr := obs.Finish(summary); ferr != nil {
		err = errors.Join(err, fmt.Errorf("finish run: %w", ferr))
	}
	return summary, err
}

// refresh recomputes the gradient, residual and value at the current position.
func (e *Engine) refresh(s *State) {
	s.Gradient = e.obj.Gradient(s.Position)
	s.Residual = floats.Norm(s.Gradient[:], 2)
	s.Value = e.obj.Value(s.Position)
}

func (e *Engine) summarize(s *State, reason Reason, start time.Time) Summary {
	return Summary{
		Status:     s.Status,
		Reason:     reason,
		Converged:  s.Status == StatusConverged,
		OptimalX:   s.Position[0],
		OptimalY:   s.Position[1],
		FOptimal:   s.Value,
		Iterations: s.Iteration,
		Residual:   s.Residual,
		Damping:    s.Damping,
		Elapsed:    time.Since(start),
	}
}
