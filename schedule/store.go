// Package schedule persists cron-style job definitions and runs them in an
// in-process scheduler. Three trigger kinds are supported: a 5-field cron
// expression with an optional timezone, a fixed interval in minutes, and a
// one-shot absolute timestamp. Every fire creates a fresh agent run whose
// lifecycle is broadcast on the hooks bus and logged under the workspace.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger kinds carried by Spec.Kind.
const (
	KindCron     = "cron"
	KindInterval = "interval"
	KindOnce     = "once"
)

type (
	// Job is one persisted schedule entry.
	Job struct {
		ID      string    `json:"id"`
		Name    string    `json:"name"`
		Task    string    `json:"task"`
		Spec    Spec      `json:"spec"`
		Paused  bool      `json:"paused"`
		Created time.Time `json:"created"`
	}

	// Spec describes when a job fires. Kind selects which of the other
	// fields is meaningful.
	Spec struct {
		Kind string `json:"kind"`
		// Expression is a 5-field cron expression (KindCron).
		Expression string `json:"expression,omitempty"`
		// Timezone is an IANA zone name for cron expressions; empty means
		// the process-local zone.
		Timezone string `json:"timezone,omitempty"`
		// Minutes is the repeat period (KindInterval).
		Minutes int `json:"minutes,omitempty"`
		// At is the single fire time (KindOnce).
		At time.Time `json:"at,omitempty"`
	}

	// Store persists jobs as a single JSON map in one file, rewritten
	// atomically on every mutation.
	Store struct {
		mu   sync.Mutex
		path string
	}
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate checks the spec is well formed and its trigger parseable.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindCron:
		if _, err := cronParser.Parse(s.Expression); err != nil {
			return fmt.Errorf("schedule: bad cron expression %q: %w", s.Expression, err)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("schedule: unknown timezone %q: %w", s.Timezone, err)
			}
		}
	case KindInterval:
		if s.Minutes <= 0 {
			return errors.New("schedule: interval minutes must be positive")
		}
	case KindOnce:
		if s.At.IsZero() {
			return errors.New("schedule: one-shot timestamp is required")
		}
	default:
		return fmt.Errorf("schedule: unknown trigger kind %q", s.Kind)
	}
	return nil
}

// String renders the trigger for listings.
func (s Spec) String() string {
	switch s.Kind {
	case KindCron:
		if s.Timezone != "" {
			return fmt.Sprintf("%s (%s)", s.Expression, s.Timezone)
		}
		return s.Expression
	case KindInterval:
		return fmt.Sprintf("every %d minute(s)", s.Minutes)
	case KindOnce:
		return "once at " + s.At.Format(time.RFC3339)
	default:
		return s.Kind
	}
}

// NewStore binds a store to the given file path. The file is created on the
// first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all jobs. A missing file yields an empty map.
func (st *Store) Load() (map[string]*Job, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.load()
}

func (st *Store) load() (map[string]*Job, error) {
	jobs := make(map[string]*Job)
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return jobs, nil
		}
		return nil, fmt.Errorf("schedule: read jobs: %w", err)
	}
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("schedule: parse jobs: %w", err)
	}
	return jobs, nil
}

// Put inserts or replaces a job.
func (st *Store) Put(job *Job) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	jobs, err := st.load()
	if err != nil {
		return err
	}
	jobs[job.ID] = job
	return st.save(jobs)
}

// Delete removes a job. Deleting an unknown id is not an error.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	jobs, err := st.load()
	if err != nil {
		return err
	}
	delete(jobs, id)
	return st.save(jobs)
}

// SetPaused flips the paused flag of a job.
func (st *Store) SetPaused(id string, paused bool) (*Job, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	jobs, err := st.load()
	if err != nil {
		return nil, err
	}
	job, ok := jobs[id]
	if !ok {
		return nil, fmt.Errorf("schedule: unknown job %q", id)
	}
	job.Paused = paused
	if err := st.save(jobs); err != nil {
		return nil, err
	}
	return job, nil
}

func (st *Store) save(jobs map[string]*Job) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("schedule: create dir: %w", err)
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("schedule: marshal jobs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(st.path), "jobs-*.json")
	if err != nil {
		return fmt.Errorf("schedule: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("schedule: write jobs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("schedule: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("schedule: rename jobs: %w", err)
	}
	return nil
}
