package store

// Store defines the interface for run audit persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the summary record of a finished run.
	// An existing record for the same runID is overwritten.
	SaveRun(runID string, record *RunRecord) error

	// LoadRun retrieves the summary record of a run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for all stored runs, newest first.
	// The returned slice may be empty.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run and all its artifacts:
	//   - summary.json
	//   - trace.jsonl
	//   - trace.csv
	//
	// Returns ErrNotFound if the run doesn't exist.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
