package lm

import (
	"errors"
	"time"
)

// Snapshot is one trace row: the state after a step, or the initial state
// for iteration 0.
type Snapshot struct {
	Iteration int     `json:"iteration"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	GradX     float64 `json:"grad_x"`
	GradY     float64 `json:"grad_y"`
	Residual  float64 `json:"residual"`
	Status    Status  `json:"status"`
	Damping   float64 `json:"damping"`
	Value     float64 `json:"value"`
}

// Summary is the single audit record produced when a run ends.
type Summary struct {
	Status     Status        `json:"status"`
	Reason     Reason        `json:"reason"`
	Converged  bool          `json:"converged"`
	OptimalX   float64       `json:"optimal_x"`
	OptimalY   float64       `json:"optimal_y"`
	FOptimal   float64       `json:"f_optimal"`
	Iterations int           `json:"iterations"`
	Residual   float64       `json:"residual"`
	Damping    float64       `json:"damping"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Observer receives the audit trail of a run. Observe is called once for the
// initial state and once per step, in order; Finish is called once at the end.
// Returning an error aborts the run.
type Observer interface {
	Observe(snap Snapshot) error
	Finish(summary Summary) error
}

// Recorder keeps the audit trail in memory.
type Recorder struct {
	Snapshots []Snapshot
	Summary   *Summary
}

// NewRecorder returns an empty in-memory observer.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Observe(snap Snapshot) error {
	r.Snapshots = append(r.Snapshots, snap)
	return nil
}

func (r *Recorder) Finish(summary Summary) error {
	r.Summary = &summary
	return nil
}

// Observers fans one audit trail out to several observers. Nil entries are
// skipped. Every observer sees every event; errors are joined.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) Observe(snap Snapshot) error {
	var errs []error
	for _, o := range m {
		if err := o.Observe(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiObserver) Finish(summary Summary) error {
	var errs []error
	for _, o := range m {
		if err := o.Finish(summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
