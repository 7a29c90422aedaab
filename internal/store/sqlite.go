package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cwbudde/odts/internal/lm"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	reason      TEXT,
	converged   INTEGER NOT NULL,
	optimal_x   REAL NOT NULL,
	optimal_y   REAL NOT NULL,
	f_optimal   REAL NOT NULL,
	iterations  INTEGER NOT NULL,
	residual    REAL NOT NULL,
	damping     REAL NOT NULL,
	config_json TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iterations (
	run_id    TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	x         REAL NOT NULL,
	y         REAL NOT NULL,
	grad_x    REAL NOT NULL,
	grad_y    REAL NOT NULL,
	residual  REAL NOT NULL,
	status    TEXT NOT NULL,
	damping   REAL NOT NULL,
	value     REAL NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
`

// SQLStore keeps run audit trails in a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) the SQLite database at dbPath and runs
// migrations. ":memory:" gives a private in-memory database.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Sink returns an observer that records the run's iterations and summary.
func (s *SQLStore) Sink(runID string, config RunConfig) *SQLSink {
	return &SQLSink{store: s, runID: runID, config: config}
}

// LoadTrace returns the stored snapshots of a run ordered by iteration.
func (s *SQLStore) LoadTrace(runID string) ([]lm.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT iteration, x, y, grad_x, grad_y, residual, status, damping, value
		 FROM iterations WHERE run_id = ? ORDER BY iteration`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	var snaps []lm.Snapshot
	for rows.Next() {
		var snap lm.Snapshot
		var status string
		if err := rows.Scan(&snap.Iteration, &snap.X, &snap.Y, &snap.GradX, &snap.GradY,
			&snap.Residual, &status, &snap.Damping, &snap.Value); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		snap.Status = lm.Status(status)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	if len(snaps) == 0 {
		return nil, &NotFoundError{RunID: runID}
	}
	return snaps, nil
}

// LoadRun returns the summary record of a run.
func (s *SQLStore) LoadRun(runID string) (*RunRecord, error) {
	var (
		rec        RunRecord
		status     string
		reason     sql.NullString
		converged  int
		configJSON sql.NullString
		createdAt  string
	)
	err := s.db.QueryRow(
		`SELECT run_id, status, reason, converged, optimal_x, optimal_y, f_optimal,
		        iterations, residual, damping, config_json, created_at
		 FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&rec.RunID, &status, &reason, &converged, &rec.OptimalX, &rec.OptimalY, &rec.FOptimal,
		&rec.Iterations, &rec.Residual, &rec.Damping, &configJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rec.Status = lm.Status(status)
	rec.Reason = lm.Reason(reason.String)
	rec.Converged = converged != 0
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if configJSON.Valid {
		if err := json.Unmarshal([]byte(configJSON.String), &rec.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return &rec, nil
}

// SQLSink is the lm.Observer returned by SQLStore.Sink.
type SQLSink struct {
	store  *SQLStore
	runID  string
	config RunConfig
}

// Observe inserts one iteration row. Re-observing an iteration replaces it.
func (k *SQLSink) Observe(snap lm.Snapshot) error {
	_, err := k.store.db.Exec(
		`INSERT OR REPLACE INTO iterations
		 (run_id, iteration, x, y, grad_x, grad_y, residual, status, damping, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.runID, snap.Iteration, snap.X, snap.Y, snap.GradX, snap.GradY,
		snap.Residual, string(snap.Status), snap.Damping, snap.Value,
	)
	if err != nil {
		return fmt.Errorf("insert iteration: %w", err)
	}
	return nil
}

// Finish writes the run summary row.
func (k *SQLSink) Finish(summary lm.Summary) error {
	configJSON, err := json.Marshal(k.config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	converged := 0
	if summary.Converged {
		converged = 1
	}

	_, err = k.store.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (run_id, status, reason, converged, optimal_x, optimal_y, f_optimal,
		  iterations, residual, damping, config_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.runID, string(summary.Status), string(summary.Reason), converged,
		summary.OptimalX, summary.OptimalY, summary.FOptimal,
		summary.Iterations, summary.Residual, summary.Damping,
		string(configJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
