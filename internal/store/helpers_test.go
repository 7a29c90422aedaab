package store

import (
	"context"
	"testing"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/objective"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

func testRunConfig() RunConfig {
	return RunConfig{X0: 0.3, Y0: 0.8, Solver: lm.DefaultConfig()}
}

// createTestRecord creates a run record with plausible data.
func createTestRecord(runID string) *RunRecord {
	return NewRunRecord(runID, lm.Summary{
		Status:     lm.StatusConverged,
		Reason:     lm.ReasonConverged,
		Converged:  true,
		OptimalX:   2.1e-13,
		OptimalY:   2,
		FOptimal:   1,
		Iterations: 16,
		Residual:   3e-13,
		Damping:    1,
	}, testRunConfig())
}

// runReference runs the reference problem into obs and returns the summary.
func runReference(t *testing.T, obs lm.Observer) lm.Summary {
	t.Helper()

	engine, err := lm.NewEngine(objective.NewStressSurface(), lm.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := engine.NewState(objective.Vec2{0.3, 0.8})
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	summary, err := engine.Run(context.Background(), state, obs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return summary
}
