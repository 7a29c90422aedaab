package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/odts/internal/lm"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the job will not change anymore.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is the request body of POST /api/v1/runs.
// Fields missing from the request keep their DefaultJobConfig value.
type JobConfig struct {
	X0          float64 `json:"x0"`
	Y0          float64 `json:"y0"`
	Damping     float64 `json:"damping"`
	DampingUp   float64 `json:"dampingUp"`
	DampingDown float64 `json:"dampingDown"`
	MaxDamping  float64 `json:"maxDamping"`
	MaxIters    int     `json:"maxIters"`
	Tolerance   float64 `json:"tolerance"`
	SearchStart bool    `json:"searchStart,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
}

// DefaultJobConfig returns the reference run from (0.3, 0.8).
func DefaultJobConfig() JobConfig {
	d := lm.DefaultConfig()
	return JobConfig{
		X0:          0.3,
		Y0:          0.8,
		Damping:     d.InitialDamping,
		DampingUp:   d.DampingUp,
		DampingDown: d.DampingDown,
		MaxDamping:  d.MaxDamping,
		MaxIters:    d.MaxIterations,
		Tolerance:   d.Tolerance,
	}
}

// Solver returns the engine configuration of the job.
func (c JobConfig) Solver() lm.Config {
	cfg := lm.DefaultConfig()
	cfg.InitialDamping = c.Damping
	cfg.DampingUp = c.DampingUp
	cfg.DampingDown = c.DampingDown
	cfg.MaxDamping = c.MaxDamping
	cfg.MaxIterations = c.MaxIters
	cfg.Tolerance = c.Tolerance
	return cfg
}

// Validate checks the solver settings of the job.
func (c JobConfig) Validate() error {
	return c.Solver().Validate()
}

// Job represents one optimizer run submitted over HTTP
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	// Last is the latest snapshot of the run
	Last lm.Snapshot `json:"last"`

	Summary   *lm.Summary   `json:"summary,omitempty"`
	Snapshots []lm.Snapshot `json:"-"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// JobManager holds the jobs submitted to the server. Jobs handed out are
// copies; changes go through UpdateJob.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// copyJob returns a copy of job that shares nothing mutable with it.
func copyJob(job *Job) *Job {
	cp := *job
	cp.Snapshots = nil
	return &cp
}

// CreateJob registers a pending job for config.
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.mu.Lock()
	jm.jobs[job.ID] = job
	jm.mu.Unlock()

	return copyJob(job)
}

func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return copyJob(job), true
}

// ListJobs returns every job, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	return jm.filter(func(*Job) bool { return true })
}

// GetRunningJobs returns the jobs whose run is in progress, oldest first.
func (jm *JobManager) GetRunningJobs() []*Job {
	return jm.filter(func(j *Job) bool { return j.State == StateRunning })
}

func (jm *JobManager) filter(keep func(*Job) bool) []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		if keep(job) {
			jobs = append(jobs, copyJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// Trace returns the snapshots recorded so far for a job.
func (jm *JobManager) Trace(id string) ([]lm.Snapshot, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return append([]lm.Snapshot(nil), job.Snapshots...), true
}

// UpdateJob applies fn to the stored job under the manager lock.
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	fn(job)
	return nil
}
