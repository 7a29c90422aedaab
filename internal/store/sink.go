package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/odts/internal/lm"
)

// SinkOptions selects the optional artifacts of a run.
type SinkOptions struct {
	// CSV also writes trace.csv next to trace.jsonl
	CSV bool
}

// RunSink is the lm.Observer that persists one run into an FSStore: every
// snapshot goes to trace.jsonl (and trace.csv if enabled), and the summary is
// saved as summary.json when the run finishes.
type RunSink struct {
	store  *FSStore
	runID  string
	config RunConfig

	trace *TraceWriter
	csv   *CSVTraceWriter
}

// NewRunSink opens the trace files of runID.
func NewRunSink(fs *FSStore, runID string, config RunConfig, opts SinkOptions) (*RunSink, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	trace, err := NewTraceWriter(fs.BaseDir(), runID, false)
	if err != nil {
		return nil, err
	}

	sink := &RunSink{
		store:  fs,
		runID:  runID,
		config: config,
		trace:  trace,
	}

	if opts.CSV {
		sink.csv, err = NewCSVTraceFile(fs.BaseDir(), runID)
		if err != nil {
			trace.Close()
			return nil, err
		}
	}

	return sink, nil
}

// RunID returns the run the sink writes to.
func (s *RunSink) RunID() string {
	return s.runID
}

// Observe appends the snapshot to every trace file.
func (s *RunSink) Observe(snap lm.Snapshot) error {
	if err := s.trace.Observe(snap); err != nil {
		return err
	}
	if s.csv != nil {
		return s.csv.Observe(snap)
	}
	return nil
}

// Finish flushes the traces and saves the summary record.
func (s *RunSink) Finish(summary lm.Summary) error {
	if err := s.trace.Flush(); err != nil {
		return err
	}
	if s.csv != nil {
		if err := s.csv.Flush(); err != nil {
			return err
		}
	}

	record := NewRunRecord(s.runID, summary, s.config)
	if err := s.store.SaveRun(s.runID, record); err != nil {
		return err
	}

	slog.Info("Run audit saved",
		"runID", s.runID,
		"trace", s.trace.Path(),
		"status", summary.Status,
	)
	return nil
}

// Close closes the trace files.
func (s *RunSink) Close() error {
	var errs []error
	if err := s.trace.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.csv != nil {
		if err := s.csv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
