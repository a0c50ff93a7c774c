package schedule

import (
	"fmt"
	"sync"
	"time"
)

// Registry bounds: each run keeps at most maxRunEvents event lines, and at
// most MaxHistory completed runs are retained.
const (
	maxRunEvents = 200
	MaxHistory   = 50
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

type (
	// Run records one scheduled firing.
	Run struct {
		RunID   string    `json:"run_id"`
		JobID   string    `json:"job_id"`
		JobName string    `json:"job_name"`
		Status  string    `json:"status"`
		Started time.Time `json:"started"`
		Ended   time.Time `json:"ended,omitempty"`
		Events  []string  `json:"events,omitempty"`
		Result  string    `json:"result,omitempty"`
		Error   string    `json:"error,omitempty"`

		// dropped counts event lines discarded once the cap was hit.
		dropped int
	}

	// Registry is the in-memory record of scheduled runs. All methods are
	// safe for concurrent use; listings copy out under the lock.
	Registry struct {
		mu    sync.Mutex
		runs  map[string]*Run
		order []string
	}
)

// NewRegistry constructs an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Start records a new running entry and prunes completed history beyond
// MaxHistory.
func (r *Registry) Start(runID string, job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = &Run{
		RunID:   runID,
		JobID:   job.ID,
		JobName: job.Name,
		Status:  StatusRunning,
		Started: time.Now().UTC(),
	}
	r.order = append(r.order, runID)
	r.prune()
}

// Event appends one event line to a run, dropping lines past the cap.
func (r *Registry) Event(runID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return
	}
	if len(run.Events) >= maxRunEvents {
		run.dropped++
		return
	}
	run.Events = append(run.Events, line)
}

// Finish marks a run done or errored.
func (r *Registry) Finish(runID, result string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return
	}
	run.Ended = time.Now().UTC()
	if err != nil {
		run.Status = StatusError
		run.Error = err.Error()
	} else {
		run.Status = StatusDone
		run.Result = result
	}
	if run.dropped > 0 {
		run.Events = append(run.Events, fmt.Sprintf("[%d event(s) dropped]", run.dropped))
	}
}

// Get returns a copy of the run, or nil when unknown.
func (r *Registry) Get(runID string) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil
	}
	return copyRun(run)
}

// List returns copies of all retained runs, newest first.
func (r *Registry) List() []*Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if run, ok := r.runs[r.order[i]]; ok {
			out = append(out, copyRun(run))
		}
	}
	return out
}

// ListJob returns copies of the retained runs of one job, newest first.
func (r *Registry) ListJob(jobID string) []*Run {
	var out []*Run
	for _, run := range r.List() {
		if run.JobID == jobID {
			out = append(out, run)
		}
	}
	return out
}

// prune drops the oldest completed runs once more than MaxHistory runs are
// retained. Running entries are never pruned. Caller holds the lock.
func (r *Registry) prune() {
	if len(r.order) <= MaxHistory {
		return
	}
	kept := r.order[:0]
	excess := len(r.order) - MaxHistory
	for _, id := range r.order {
		run := r.runs[id]
		if excess > 0 && run != nil && run.Status != StatusRunning {
			delete(r.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

func copyRun(run *Run) *Run {
	dup := *run
	dup.Events = append([]string(nil), run.Events...)
	return &dup
}
