package server

import (
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/odts/internal/lm"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := DefaultJobConfig()
	config.X0 = -0.5

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.X0 != -0.5 || job.Config.MaxIters != 50 {
		t.Errorf("Config not set correctly: %+v", job.Config)
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(DefaultJobConfig())

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_GetJobReturnsCopy(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(DefaultJobConfig())

	retrieved, _ := jm.GetJob(job.ID)
	retrieved.State = StateFailed

	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Errorf("Mutating a returned job changed the manager: %s", again.State)
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(DefaultJobConfig())
	time.Sleep(time.Millisecond)
	second := jm.CreateJob(DefaultJobConfig())

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(DefaultJobConfig())

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Last = lm.Snapshot{Iteration: 3, Status: lm.StatusDampingUp}
		j.Snapshots = append(j.Snapshots, j.Last)
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Last.Iteration != 3 {
		t.Errorf("Job not updated: %+v", updated)
	}

	trace, ok := jm.Trace(job.ID)
	if !ok || len(trace) != 1 {
		t.Errorf("Expected one trace row, got %v", trace)
	}

	if err := jm.UpdateJob("nonexistent", func(*Job) {}); err == nil {
		t.Error("Expected error for nonexistent job")
	}
}

func TestJobManager_GetRunningJobs(t *testing.T) {
	jm := NewJobManager()

	a := jm.CreateJob(DefaultJobConfig())
	jm.CreateJob(DefaultJobConfig())

	jm.UpdateJob(a.ID, func(j *Job) { j.State = StateRunning })

	running := jm.GetRunningJobs()
	if len(running) != 1 || running[0].ID != a.ID {
		t.Errorf("Expected only job %s running, got %d jobs", a.ID, len(running))
	}
}

func TestJobManager_ConcurrentUpdates(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(DefaultJobConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Snapshots = append(j.Snapshots, lm.Snapshot{Iteration: i})
			})
			jm.GetJob(job.ID)
		}(i)
	}
	wg.Wait()

	trace, _ := jm.Trace(job.ID)
	if len(trace) != 50 {
		t.Errorf("Expected 50 trace rows, got %d", len(trace))
	}
}

func TestJobConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(*JobConfig)
		wantErr bool
	}{
		{"default", func(*JobConfig) {}, false},
		{"zero damping", func(c *JobConfig) { c.Damping = 0 }, true},
		{"damping up", func(c *JobConfig) { c.DampingUp = 0.5 }, true},
		{"damping down", func(c *JobConfig) { c.DampingDown = 2 }, true},
		{"no iterations", func(c *JobConfig) { c.MaxIters = 0 }, true},
		{"negative tolerance", func(c *JobConfig) { c.Tolerance = -1 }, true},
		{"ceiling below damping", func(c *JobConfig) { c.MaxDamping = 0.001 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultJobConfig()
			tt.mut(&config)

			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobState_Done(t *testing.T) {
	for state, want := range map[JobState]bool{
		StatePending:   false,
		StateRunning:   false,
		StateCompleted: true,
		StateFailed:    true,
		StateCancelled: true,
	} {
		if state.Done() != want {
			t.Errorf("%s.Done() = %v, want %v", state, state.Done(), want)
		}
	}
}
