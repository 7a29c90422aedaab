package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/objective"
)

func TestRunSink_ReferenceRun(t *testing.T) {
	fs, tmpDir := setupTestStore(t)

	sink, err := NewRunSink(fs, "sink-run", testRunConfig(), SinkOptions{CSV: true})
	if err != nil {
		t.Fatalf("NewRunSink failed: %v", err)
	}
	defer sink.Close()

	summary := runReference(t, sink)

	trace, err := LoadTrace(tmpDir, "sink-run")
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(trace) != summary.Iterations+1 {
		t.Errorf("Expected %d trace rows, got %d", summary.Iterations+1, len(trace))
	}
	if trace[0].Iteration != 0 || trace[len(trace)-1].Status != summary.Status {
		t.Errorf("Unexpected trace bounds: first=%+v last=%+v", trace[0], trace[len(trace)-1])
	}

	rec, err := fs.LoadRun("sink-run")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if rec.Summary != summary {
		t.Errorf("Saved summary = %+v, want %+v", rec.Summary, summary)
	}
	if rec.Status != lm.StatusConverged {
		t.Errorf("Status = %s, want CONVERGED", rec.Status)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "runs", "sink-run", "trace.csv")); err != nil {
		t.Errorf("trace.csv missing: %v", err)
	}
}

func TestRunSink_NoCSV(t *testing.T) {
	fs, tmpDir := setupTestStore(t)

	sink, err := NewRunSink(fs, "plain", testRunConfig(), SinkOptions{})
	if err != nil {
		t.Fatalf("NewRunSink failed: %v", err)
	}
	runReference(t, sink)
	sink.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "runs", "plain", "trace.csv")); !os.IsNotExist(err) {
		t.Errorf("trace.csv should not exist, stat err = %v", err)
	}

	runs, err := fs.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "plain" {
		t.Errorf("Unexpected runs: %+v", runs)
	}
}

func TestRunSink_EmptyRunID(t *testing.T) {
	fs, _ := setupTestStore(t)

	if _, err := NewRunSink(fs, "", testRunConfig(), SinkOptions{}); err == nil {
		t.Error("Expected error for empty runID")
	}
}

// brokenObserver fails on its n-th snapshot.
type brokenObserver struct {
	n, calls int
}

func (b *brokenObserver) Observe(lm.Snapshot) error {
	b.calls++
	if b.calls == b.n {
		return errors.New("broken pipe")
	}
	return nil
}

func (b *brokenObserver) Finish(lm.Summary) error { return nil }

func TestRunSink_SavesSummaryWhenAnotherObserverFails(t *testing.T) {
	fs, tmpDir := setupTestStore(t)

	sink, err := NewRunSink(fs, "aborted", testRunConfig(), SinkOptions{})
	if err != nil {
		t.Fatalf("NewRunSink failed: %v", err)
	}
	defer sink.Close()

	engine, _ := lm.NewEngine(objective.NewStressSurface(), lm.DefaultConfig())
	state, _ := engine.NewState(objective.Vec2{0.3, 0.8})

	summary, err := engine.Run(context.Background(), state, lm.Observers(sink, &brokenObserver{n: 4}))
	if err == nil {
		t.Fatal("Run should report the observer failure")
	}

	rec, err := fs.LoadRun("aborted")
	if err != nil {
		t.Fatalf("summary.json missing after observer failure: %v", err)
	}
	if rec.Reason != lm.ReasonAborted || rec.Iterations != 3 {
		t.Errorf("Saved summary = %+v, want aborted after 3 iterations", rec.Summary)
	}
	if rec.Summary != summary {
		t.Errorf("Saved summary = %+v, want %+v", rec.Summary, summary)
	}

	trace, err := LoadTrace(tmpDir, "aborted")
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(trace) != 4 {
		t.Errorf("Expected 4 trace rows, got %d", len(trace))
	}
}
