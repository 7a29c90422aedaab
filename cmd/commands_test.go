package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/server"
	"github.com/cwbudde/odts/internal/store"
)

// executeCommand runs the root command with args and returns its output.
// Flags of every command are reset first because cobra keeps their values
// between executions.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if strings.HasSuffix(f.Value.Type(), "Slice") {
			return
		}
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func loadRecord(t *testing.T, dataDir, runID string) *store.RunRecord {
	t.Helper()

	runs, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	record, err := runs.LoadRun(runID)
	if err != nil {
		t.Fatalf("LoadRun(%s) failed: %v", runID, err)
	}
	return record
}

func TestRunCommand_Converges(t *testing.T) {
	dataDir := t.TempDir()

	out, err := executeCommand(t, "run", "--data-dir", dataDir, "--run-id", "reference")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Final status:  CONVERGED (converged)") {
		t.Errorf("Missing final status in output:\n%s", out)
	}
	if !strings.Contains(out, "   0      0.3000000000      0.8000000000  RUNNING") {
		t.Errorf("Missing iteration 0 line in output:\n%s", out)
	}

	record := loadRecord(t, dataDir, "reference")
	if record.Status != lm.StatusConverged {
		t.Errorf("Stored status = %s", record.Status)
	}

	trace, err := store.LoadTrace(dataDir, "reference")
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(trace) != record.Iterations+1 {
		t.Errorf("Expected %d trace rows, got %d", record.Iterations+1, len(trace))
	}
}

func TestRunCommand_BudgetExhausted(t *testing.T) {
	dataDir := t.TempDir()

	out, err := executeCommand(t, "run", "--data-dir", dataDir, "--run-id", "short", "--max-iters", "5")
	if !errors.Is(err, errNotConverged) {
		t.Fatalf("Expected errNotConverged, got %v", err)
	}
	if !strings.Contains(out, "(budget_exhausted)") {
		t.Errorf("Missing budget reason in output:\n%s", out)
	}

	record := loadRecord(t, dataDir, "short")
	if record.Iterations != 5 || record.Converged {
		t.Errorf("Unexpected record: %+v", record.Summary)
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	_, err := executeCommand(t, "run", "--data-dir", t.TempDir(), "--damping", "0")

	var verr *lm.ValidationError
	if !errors.As(err, &verr) || verr.Field != "InitialDamping" {
		t.Errorf("Expected InitialDamping validation error, got %v", err)
	}
}

func TestRunCommand_ConfigFileAndEnv(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "odts.yaml")
	os.WriteFile(cfgPath, []byte("solver:\n  max_iterations: 3\n"), 0644)
	t.Setenv("ODTS_OUTPUT_DATA_DIR", dataDir)

	_, err := executeCommand(t, "run", "--config", cfgPath, "--run-id", "from-file")
	if !errors.Is(err, errNotConverged) {
		t.Fatalf("Expected errNotConverged, got %v", err)
	}

	record := loadRecord(t, dataDir, "from-file")
	if record.Config.Solver.MaxIterations != 3 || record.Iterations != 3 {
		t.Errorf("Config file not applied: %+v", record.Config.Solver)
	}
}

func TestRunCommand_CSVAndSQLite(t *testing.T) {
	dataDir := t.TempDir()
	dbPath := filepath.Join(dataDir, "runs.db")

	if out, err := executeCommand(t, "run", "--data-dir", dataDir, "--run-id", "both", "--csv", "--sqlite", dbPath); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "runs", "both", "trace.csv")); err != nil {
		t.Errorf("trace.csv missing: %v", err)
	}

	db, err := store.NewSQLStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	defer db.Close()

	record, err := db.LoadRun("both")
	if err != nil {
		t.Fatalf("SQLite run missing: %v", err)
	}
	if !record.Converged {
		t.Errorf("SQLite record should be converged: %+v", record.Summary)
	}
}

func TestResumeCommand(t *testing.T) {
	dataDir := t.TempDir()

	_, err := executeCommand(t, "run", "--data-dir", dataDir, "--run-id", "first", "--max-iters", "5")
	if !errors.Is(err, errNotConverged) {
		t.Fatalf("Expected errNotConverged, got %v", err)
	}
	first := loadRecord(t, dataDir, "first")

	out, err := executeCommand(t, "resume", "first", "--data-dir", dataDir, "--run-id", "second")
	if err != nil {
		t.Fatalf("resume failed: %v\n%s", err, out)
	}

	second := loadRecord(t, dataDir, "second")
	if !second.Converged {
		t.Errorf("Resumed run should converge: %+v", second.Summary)
	}
	if second.Config.X0 != first.OptimalX || second.Config.Y0 != first.OptimalY {
		t.Error("Resumed run should start at the final position of the first run")
	}
	if second.Config.Solver.InitialDamping != first.Damping {
		t.Errorf("Resumed damping = %g, want %g", second.Config.Solver.InitialDamping, first.Damping)
	}

	// The budget is fresh, not inherited from the exhausted run
	if second.Config.Solver.MaxIterations != lm.DefaultConfig().MaxIterations {
		t.Errorf("Resumed budget = %d, want %d", second.Config.Solver.MaxIterations, lm.DefaultConfig().MaxIterations)
	}
	if second.Iterations != 11 {
		t.Errorf("Resumed run took %d iterations, want 11", second.Iterations)
	}

	// An explicit budget applies to the resumed run
	_, err = executeCommand(t, "resume", "first", "--data-dir", dataDir, "--run-id", "third", "--max-iters", "3")
	if !errors.Is(err, errNotConverged) {
		t.Fatalf("Expected errNotConverged with --max-iters 3, got %v", err)
	}
	third := loadRecord(t, dataDir, "third")
	if third.Config.Solver.MaxIterations != 3 || third.Iterations != 3 {
		t.Errorf("Explicit budget not applied: %+v", third.Config.Solver)
	}

	// A converged run cannot be resumed
	if _, err := executeCommand(t, "resume", "second", "--data-dir", dataDir); err == nil {
		t.Error("Expected error resuming a converged run")
	}
	if _, err := executeCommand(t, "resume", "missing", "--data-dir", dataDir); err == nil {
		t.Error("Expected error resuming a missing run")
	}
}

func TestResumeConfig_ClampsDamping(t *testing.T) {
	record := &store.RunRecord{
		RunID:   "overdamped",
		Summary: lm.Summary{Status: lm.StatusOverdamped, Damping: 1e9, OptimalX: 1, OptimalY: 2},
		Config:  store.RunConfig{Solver: lm.DefaultConfig()},
	}

	rc, err := resumeConfig(record, 40)
	if err != nil {
		t.Fatalf("resumeConfig failed: %v", err)
	}
	if rc.Solver.MaxIterations != 40 {
		t.Errorf("MaxIterations = %d, want 40", rc.Solver.MaxIterations)
	}
	if rc.Solver.InitialDamping != rc.Solver.MaxDamping {
		t.Errorf("InitialDamping = %g, want ceiling %g", rc.Solver.InitialDamping, rc.Solver.MaxDamping)
	}
	if rc.X0 != 1 || rc.Y0 != 2 {
		t.Errorf("Start = (%g, %g), want (1, 2)", rc.X0, rc.Y0)
	}
}

func TestRunsCommands(t *testing.T) {
	dataDir := t.TempDir()

	for _, id := range []string{"old-run", "new-run"} {
		if _, err := executeCommand(t, "run", "--data-dir", dataDir, "--run-id", id); err != nil {
			t.Fatalf("run %s failed: %v", id, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	out, err := executeCommand(t, "runs", "list", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("runs list failed: %v", err)
	}
	if !strings.Contains(out, "old-run") || !strings.Contains(out, "new-run") || !strings.Contains(out, "Total runs: 2") {
		t.Errorf("Unexpected list output:\n%s", out)
	}

	out, err = executeCommand(t, "runs", "show", "new-run", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	if !strings.Contains(out, "Status:     CONVERGED (converged)") || !strings.Contains(out, "ITER") {
		t.Errorf("Unexpected show output:\n%s", out)
	}

	if _, err := executeCommand(t, "runs", "clean", "--data-dir", dataDir); err == nil {
		t.Error("clean without criteria should fail")
	}

	// Without --force the empty stdin aborts
	out, err = executeCommand(t, "runs", "clean", "--data-dir", dataDir, "--keep-last", "1")
	if err != nil || !strings.Contains(out, "Aborted.") {
		t.Errorf("Expected aborted clean, got %v:\n%s", err, out)
	}

	out, err = executeCommand(t, "runs", "clean", "--data-dir", dataDir, "--keep-last", "1", "-f")
	if err != nil {
		t.Fatalf("runs clean failed: %v", err)
	}
	if !strings.Contains(out, "Deleted 1 run(s), 0 failed.") {
		t.Errorf("Unexpected clean output:\n%s", out)
	}

	runs, _ := store.NewFSStore(dataDir)
	infos, _ := runs.ListRuns()
	if len(infos) != 1 || infos[0].RunID != "new-run" {
		t.Errorf("Expected only new-run to remain, got %+v", infos)
	}
}

func TestStatusCommand(t *testing.T) {
	srv := server.NewServer("", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/runs", "application/json", strings.NewReader(`{"maxIters": 5}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	out, err := executeCommand(t, "status", "--server", ts.URL)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Found 1 run(s)") {
		t.Errorf("Unexpected status output:\n%s", out)
	}

	if _, err := executeCommand(t, "status", "missing", "--server", ts.URL); err == nil {
		t.Error("Expected error for missing run")
	}
}

func TestCheckCommand(t *testing.T) {
	out, err := executeCommand(t, "check", "--x", "0.5", "--y", "1.5")
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK") {
		t.Errorf("Expected OK in output:\n%s", out)
	}
}

func TestDCFCommand(t *testing.T) {
	out, err := executeCommand(t, "dcf")
	if err != nil {
		t.Fatalf("dcf failed: %v", err)
	}
	if !strings.Contains(out, "Enterprise Value:     2887.8") || !strings.Contains(out, "28.68") {
		t.Errorf("Unexpected dcf output:\n%s", out)
	}

	if _, err := executeCommand(t, "dcf", "--growth", "0.1"); err == nil {
		t.Error("Expected error when growth exceeds WACC")
	}
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("ODTS_SOLVER_MAX_ITERATIONS", "75")

	out, err := executeCommand(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, "max_iterations: 75") {
		t.Errorf("Environment override missing:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "odts version "+version) {
		t.Errorf("Unexpected version output: %s", out)
	}
}
