package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cwbudde/odts/internal/lm"
)

var csvHeader = []string{"iter", "x", "y", "gx", "gy", "res", "status", "lambda"}

// CSVTraceWriter writes the trace as a flat CSV table, one row per snapshot.
// It implements lm.Observer.
type CSVTraceWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *csv.Writer
}

// NewCSVTraceWriter writes the header to w and returns a writer for the rows.
func NewCSVTraceWriter(w io.Writer) (*CSVTraceWriter, error) {
	cw := &CSVTraceWriter{writer: csv.NewWriter(w)}
	if err := cw.writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return cw, nil
}

// NewCSVTraceFile creates <baseDir>/runs/<runID>/trace.csv.
func NewCSVTraceFile(baseDir, runID string) (*CSVTraceWriter, error) {
	dir := runDir(baseDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, "trace.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create csv trace: %w", err)
	}

	cw, err := NewCSVTraceWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	cw.closer = file
	return cw, nil
}

// Observe appends one row.
func (cw *CSVTraceWriter) Observe(snap lm.Snapshot) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	row := []string{
		strconv.Itoa(snap.Iteration),
		strconv.FormatFloat(snap.X, 'f', 10, 64),
		strconv.FormatFloat(snap.Y, 'f', 10, 64),
		strconv.FormatFloat(snap.GradX, 'e', 6, 64),
		strconv.FormatFloat(snap.GradY, 'e', 6, 64),
		strconv.FormatFloat(snap.Residual, 'e', 6, 64),
		string(snap.Status),
		strconv.FormatFloat(snap.Damping, 'e', 6, 64),
	}
	if err := cw.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	return nil
}

// Finish flushes buffered rows.
func (cw *CSVTraceWriter) Finish(lm.Summary) error {
	return cw.Flush()
}

// Flush writes buffered rows to the underlying writer.
func (cw *CSVTraceWriter) Flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv trace: %w", err)
	}
	return nil
}

// Close flushes and, for file-backed writers, closes the file.
func (cw *CSVTraceWriter) Close() error {
	if err := cw.Flush(); err != nil {
		if cw.closer != nil {
			cw.closer.Close()
		}
		return err
	}
	if cw.closer != nil {
		if err := cw.closer.Close(); err != nil {
			return fmt.Errorf("failed to close csv trace: %w", err)
		}
	}
	return nil
}
