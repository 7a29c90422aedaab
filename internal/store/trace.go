package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/odts/internal/lm"
)

const traceBufferSize = 64 * 1024

// TraceEntry is one line of trace.jsonl: an iteration snapshot and the time
// it was recorded.
type TraceEntry struct {
	lm.Snapshot

	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter appends snapshots to <baseDir>/runs/<runID>/trace.jsonl.
// Lines are buffered until Flush, Finish or Close. Safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewTraceWriter opens the trace of runID. With resume set, existing lines
// are kept and new ones appended; otherwise the file is truncated.
func NewTraceWriter(baseDir, runID string, resume bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	path := tracePath(baseDir, runID)
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", path, err)
	}

	buf := bufio.NewWriterSize(file, traceBufferSize)
	return &TraceWriter{path: path, file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	// Encode terminates every value with a newline.
	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry %d: %w", entry.Iteration, err)
	}
	return nil
}

// Observe records one iteration snapshot.
func (tw *TraceWriter) Observe(snap lm.Snapshot) error {
	return tw.Write(TraceEntry{Snapshot: snap, Timestamp: time.Now()})
}

// Finish flushes the trace once the run has ended.
func (tw *TraceWriter) Finish(lm.Summary) error {
	return tw.Flush()
}

// Flush writes buffered lines and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return tw.file.Sync()
}

// Close flushes and closes the file. The file is closed even if the flush fails.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace: %w", closeErr)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader streams entries back from a trace file.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
	line int
}

// NewTraceReader opens the trace of runID. A missing trace is reported as
// a NotFoundError.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}

	return &TraceReader{
		file: file,
		dec:  json.NewDecoder(bufio.NewReaderSize(file, traceBufferSize)),
	}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.dec.More() {
		return nil, io.EOF
	}

	tr.line++
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("trace line %d: %w", tr.line, err)
	}
	return &entry, nil
}

// ReadAll returns every remaining entry.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

func (tr *TraceReader) Close() error {
	return tr.file.Close()
}

// LoadTrace reads the whole trace of a run.
func LoadTrace(baseDir, runID string) ([]TraceEntry, error) {
	reader, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.ReadAll()
}

// DeleteTrace removes the trace of runID. A missing trace is not an error.
func DeleteTrace(baseDir, runID string) error {
	err := os.Remove(tracePath(baseDir, runID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	return nil
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}
