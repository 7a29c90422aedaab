package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/odts/internal/lm"
)

const (
	// A run emits at most MaxIterations+1 snapshots in quick succession.
	subscriberBuffer = 256
	keepAlive        = 30 * time.Second
)

// RunEvent is one SSE message: an iteration snapshot, or the final summary
// once the job is done.
type RunEvent struct {
	JobID     string      `json:"jobId"`
	State     JobState    `json:"state"`
	Snapshot  lm.Snapshot `json:"snapshot"`
	Summary   *lm.Summary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventBroadcaster fans run events out to the stream subscribers of each job
// and remembers the latest event per job for late subscribers.
type EventBroadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[chan RunEvent]struct{}
	latest map[string]RunEvent
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]map[chan RunEvent]struct{}),
		latest: make(map[string]RunEvent),
	}
}

// Subscribe registers a channel for jobID. The latest event, if any, is
// queued on it immediately.
func (eb *EventBroadcaster) Subscribe(jobID string) chan RunEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan RunEvent, subscriberBuffer)
	set, ok := eb.subs[jobID]
	if !ok {
		set = make(map[chan RunEvent]struct{})
		eb.subs[jobID] = set
	}
	set[ch] = struct{}{}

	if event, ok := eb.latest[jobID]; ok {
		ch <- event
	}

	slog.Debug("Stream subscribed", "job_id", jobID, "subscribers", len(set))
	return ch
}

// Unsubscribe removes and closes ch. Channels already closed by CleanupJob
// are ignored.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan RunEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	set := eb.subs[jobID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(eb.subs, jobID)
	}
}

// Broadcast records event as the latest of its job and offers it to every
// subscriber. Subscribers with a full buffer miss the event.
func (eb *EventBroadcaster) Broadcast(event RunEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event
	for ch := range eb.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Stream subscriber lagging, event dropped",
				"job_id", event.JobID, "iteration", event.Snapshot.Iteration)
		}
	}
}

// CleanupJob closes every subscriber of jobID and forgets its latest event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.subs[jobID] {
		close(ch)
	}
	delete(eb.subs, jobID)
	delete(eb.latest, jobID)
}

// handleRunStream streams the progress of a job as server-sent events. The
// first event is the current job state; the stream ends with the event that
// marks the job done.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request, jobID string) {
	// Subscribe before reading the job so no event falls in between.
	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	send := func(event RunEvent) bool {
		if err := writeSSEEvent(w, event); err != nil {
			slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !event.State.Done()
	}

	if !send(jobEvent(job)) {
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Stream client disconnected", "job_id", jobID)
			return
		case event, ok := <-events:
			if !ok || !send(event) {
				return
			}
		case <-ticker.C:
			io.WriteString(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// jobEvent describes the current state of a job as an event.
func jobEvent(job *Job) RunEvent {
	return RunEvent{
		JobID:     job.ID,
		State:     job.State,
		Snapshot:  job.Last,
		Summary:   job.Summary,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
}

// writeSSEEvent writes event as one SSE message. The event name is the job
// state and the id is the iteration, so clients can tell snapshots apart from
// the final message.
func writeSSEEvent(w io.Writer, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Snapshot.Iteration, event.State, data)
	return err
}
