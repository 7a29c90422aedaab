package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runs       *store.FSStore
	addr       string
	server     *http.Server

	// jobs run under ctx so Shutdown can cancel them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new HTTP server.
// If runs is not nil, every job is persisted to it and stored runs can be
// queried by ID.
func NewServer(addr string, runs *store.FSStore) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		runs:       runs,
		addr:       addr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the API routes wrapped with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown cancels running jobs, waits for them and gracefully shuts down
// the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRuns handles /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunsWithID handles /api/v1/runs/:id/*
func (s *Server) handleRunsWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	runID := parts[0]

	// Route based on subpath
	if len(parts) == 1 || parts[1] == "" || parts[1] == "status" {
		s.handleGetRun(w, r, runID)
	} else if parts[1] == "trace" {
		s.handleGetTrace(w, r, runID)
	} else if parts[1] == "stream" {
		s.handleRunStream(w, r, runID)
	} else {
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRun handles POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	config, err := decodeJobConfig(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runJob(s.ctx, s.jobManager, s.runs, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListRuns handles GET /api/v1/runs.
// Jobs of this server come first, followed by stored runs it did not start.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	if s.runs != nil {
		known := make(map[string]bool, len(jobs))
		for _, job := range jobs {
			known[job.ID] = true
		}

		infos, err := s.runs.ListRuns()
		if err != nil {
			slog.Warn("Failed to list stored runs", "error", err)
		}
		for _, info := range infos {
			if known[info.RunID] {
				continue
			}
			record, err := s.runs.LoadRun(info.RunID)
			if err != nil {
				continue
			}
			jobs = append(jobs, jobFromRecord(record))
		}
	}

	writeJSON(w, http.StatusOK, jobs)
}

// handleGetRun handles GET /api/v1/runs/:id
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	if job, exists := s.jobManager.GetJob(runID); exists {
		writeJSON(w, http.StatusOK, job)
		return
	}

	if s.runs != nil {
		record, err := s.runs.LoadRun(runID)
		if err == nil {
			writeJSON(w, http.StatusOK, jobFromRecord(record))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	http.Error(w, "Run not found", http.StatusNotFound)
}

// handleGetTrace handles GET /api/v1/runs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, runID string) {
	if trace, exists := s.jobManager.Trace(runID); exists {
		writeJSON(w, http.StatusOK, trace)
		return
	}

	if s.runs != nil {
		entries, err := store.LoadTrace(s.runs.BaseDir(), runID)
		if err == nil {
			trace := make([]lm.Snapshot, len(entries))
			for i, entry := range entries {
				trace[i] = entry.Snapshot
			}
			writeJSON(w, http.StatusOK, trace)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	http.Error(w, "Run not found", http.StatusNotFound)
}

// jobFromRecord presents a stored run in the shape of a finished job.
func jobFromRecord(record *store.RunRecord) *Job {
	summary := record.Summary
	endTime := record.Timestamp
	return &Job{
		ID:    record.RunID,
		State: StateCompleted,
		Config: JobConfig{
			X0:          record.Config.X0,
			Y0:          record.Config.Y0,
			Damping:     record.Config.Solver.InitialDamping,
			DampingUp:   record.Config.Solver.DampingUp,
			DampingDown: record.Config.Solver.DampingDown,
			MaxDamping:  record.Config.Solver.MaxDamping,
			MaxIters:    record.Config.Solver.MaxIterations,
			Tolerance:   record.Config.Solver.Tolerance,
			SearchStart: record.Config.StartSearch,
		},
		Last: lm.Snapshot{
			Iteration: summary.Iterations,
			X:         summary.OptimalX,
			Y:         summary.OptimalY,
			Residual:  summary.Residual,
			Status:    summary.Status,
			Damping:   summary.Damping,
			Value:     summary.FOptimal,
		},
		Summary:   &summary,
		StartTime: record.Timestamp.Add(-summary.Elapsed),
		EndTime:   &endTime,
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
