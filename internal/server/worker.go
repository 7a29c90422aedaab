package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/objective"
	"github.com/cwbudde/odts/internal/opt"
	"github.com/cwbudde/odts/internal/store"
)

// runJob executes the run of jobID and records its outcome on the job.
// If runs is not nil, the trace and summary are persisted under the job ID.
// Context errors leave the job cancelled; any other error leaves it failed.
func runJob(ctx context.Context, jm *JobManager, runs *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	cfg := job.Config
	slog.Info("Starting job", "job_id", jobID, "x0", cfg.X0, "y0", cfg.Y0, "max_iters", cfg.MaxIters)

	summary, err := execute(ctx, jm, runs, jobID, cfg)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		finishJob(jm, jobID, StateCancelled, nil, nil)
		slog.Info("Job cancelled", "job_id", jobID)
	case err != nil:
		finishJob(jm, jobID, StateFailed, nil, err)
		slog.Error("Job failed", "job_id", jobID, "error", err)
	default:
		finishJob(jm, jobID, StateCompleted, &summary, nil)
		slog.Info("Job completed",
			"job_id", jobID,
			"status", summary.Status,
			"reason", summary.Reason,
			"iterations", summary.Iterations,
			"f", summary.FOptimal,
			"elapsed", summary.Elapsed,
		)
	}
	return err
}

// execute runs the engine for cfg with the job observer and, if runs is set,
// the audit sink attached.
func execute(ctx context.Context, jm *JobManager, runs *store.FSStore, jobID string, cfg JobConfig) (lm.Summary, error) {
	if err := ctx.Err(); err != nil {
		return lm.Summary{}, err
	}

	obj := objective.NewStressSurface()
	start := objective.Vec2{cfg.X0, cfg.Y0}
	if cfg.SearchStart {
		found, value, err := opt.NewStartSearch(cfg.Seed).Find(obj)
		if err != nil {
			return lm.Summary{}, fmt.Errorf("start search: %w", err)
		}
		slog.Debug("Job start searched", "job_id", jobID, "x0", found[0], "y0", found[1], "f", value)
		start = found
	}

	engine, err := lm.NewEngine(obj, cfg.Solver())
	if err != nil {
		return lm.Summary{}, err
	}
	state, err := engine.NewState(start)
	if err != nil {
		return lm.Summary{}, err
	}

	var observer lm.Observer = &jobObserver{jm: jm, jobID: jobID}
	if runs != nil {
		rc := store.RunConfig{
			X0:          start[0],
			Y0:          start[1],
			Solver:      cfg.Solver(),
			StartSearch: cfg.SearchStart,
		}
		sink, err := store.NewRunSink(runs, jobID, rc, store.SinkOptions{})
		if err != nil {
			return lm.Summary{}, err
		}
		defer sink.Close()
		observer = lm.Observers(observer, sink)
	}

	return engine.Run(ctx, state, observer)
}

// finishJob moves a job to a done state and publishes the final event.
func finishJob(jm *JobManager, jobID string, state JobState, summary *lm.Summary, cause error) {
	end := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.EndTime = &end
		if summary != nil {
			j.Summary = summary
		}
		if cause != nil {
			j.Error = cause.Error()
		}
	})

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(jobEvent(job))
	}
}

// jobObserver mirrors the run into the job record and its stream subscribers.
type jobObserver struct {
	jm    *JobManager
	jobID string
}

func (o *jobObserver) Observe(snap lm.Snapshot) error {
	err := o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Last = snap
		j.Snapshots = append(j.Snapshots, snap)
	})
	if err != nil {
		return err
	}

	o.jm.broadcaster.Broadcast(RunEvent{
		JobID:     o.jobID,
		State:     StateRunning,
		Snapshot:  snap,
		Timestamp: time.Now(),
	})
	return nil
}

// Finish is a no-op; runJob stores the summary with the completed state.
func (o *jobObserver) Finish(lm.Summary) error {
	return nil
}
