package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/odts/internal/lm"
)

// RunConfig holds everything needed to repeat a run.
type RunConfig struct {
	X0     float64   `json:"x0"`
	Y0     float64   `json:"y0"`
	Solver lm.Config `json:"solver"`

	// StartSearch records that (X0, Y0) came from a global start-point search
	StartSearch bool `json:"startSearch,omitempty"`
}

// RunRecord is the persisted summary of a finished run. The embedded summary
// fields are written at the top level of summary.json.
type RunRecord struct {
	RunID string `json:"runId"`

	lm.Summary

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`
}

// RunInfo is the listing view of a run.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Status     lm.Status `json:"status"`
	Reason     lm.Reason `json:"reason"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	FOptimal   float64   `json:"f_optimal"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRunRecord creates the record for a run that just finished.
func NewRunRecord(runID string, summary lm.Summary, config RunConfig) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		Summary:   summary,
		Timestamp: time.Now(),
		Config:    config,
	}
}

// ToInfo converts a RunRecord to its listing view.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		Status:     r.Status,
		Reason:     r.Reason,
		Converged:  r.Converged,
		Iterations: r.Iterations,
		FOptimal:   r.FOptimal,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	switch r.Status {
	case lm.StatusRunning, lm.StatusDampingUp, lm.StatusConverged, lm.StatusOverdamped:
	default:
		return &ValidationError{Field: "Status", Reason: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.Converged != (r.Status == lm.StatusConverged) {
		return &ValidationError{Field: "Converged", Reason: "disagrees with Status"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Iterations > r.Config.Solver.MaxIterations {
		return &ValidationError{
			Field:  "Iterations",
			Reason: fmt.Sprintf("exceeds budget of %d", r.Config.Solver.MaxIterations),
		}
	}
	if r.Damping <= 0 {
		return &ValidationError{Field: "Damping", Reason: "must be positive"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := r.Config.Solver.Validate(); err != nil {
		return &ValidationError{Field: "Config.Solver", Reason: err.Error()}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
