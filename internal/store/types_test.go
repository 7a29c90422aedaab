package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/odts/internal/lm"
)

func TestRunRecord_JSONLayout(t *testing.T) {
	record := createTestRecord("run-json")

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Summary fields sit at the top level of summary.json.
	for _, key := range []string{"runId", "status", "optimal_x", "optimal_y", "f_optimal", "iterations", "timestamp", "config"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Missing top-level field %q in %s", key, data)
		}
	}
	if fields["status"] != "CONVERGED" {
		t.Errorf("status = %v, want CONVERGED", fields["status"])
	}
}

func TestRunRecord_Validate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*RunRecord)
		field string
	}{
		{"valid", func(*RunRecord) {}, ""},
		{"empty id", func(r *RunRecord) { r.RunID = "" }, "RunID"},
		{"unknown status", func(r *RunRecord) { r.Status = "DONE" }, "Status"},
		{"converged flag mismatch", func(r *RunRecord) { r.Converged = false }, "Converged"},
		{"negative iterations", func(r *RunRecord) { r.Iterations = -1 }, "Iterations"},
		{"over budget", func(r *RunRecord) { r.Iterations = 51 }, "Iterations"},
		{"zero damping", func(r *RunRecord) { r.Damping = 0 }, "Damping"},
		{"zero timestamp", func(r *RunRecord) { r.Timestamp = time.Time{} }, "Timestamp"},
		{"bad solver config", func(r *RunRecord) { r.Config.Solver.MaxIterations = 0; r.Iterations = 0 }, "Config.Solver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := createTestRecord("run")
			tt.mut(record)

			err := record.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Expected valid record, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestRunRecord_ToInfo(t *testing.T) {
	record := createTestRecord("run-info")
	info := record.ToInfo()

	if info.RunID != "run-info" ||
		info.Status != lm.StatusConverged ||
		info.Reason != lm.ReasonConverged ||
		!info.Converged ||
		info.Iterations != 16 ||
		info.FOptimal != 1 ||
		!info.Timestamp.Equal(record.Timestamp) {
		t.Errorf("Unexpected info: %+v", info)
	}
}
