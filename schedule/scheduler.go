package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/telemetry"
)

// logDirName is the per-workspace directory scheduled-run logs land in.
const logDirName = ".cron_logs"

type (
	// Runner executes one scheduled firing. Implementations create a fresh
	// agent per run; record receives progress lines for the run's capped
	// event log. The returned string is the run result.
	Runner func(ctx context.Context, job *Job, record func(line string)) (string, error)

	// Scheduler owns the cron engine, the job store and the run registry.
	// One scheduler serves the whole process; each fire runs in its own
	// goroutine (the cron engine never blocks on a job).
	Scheduler struct {
		store    *Store
		registry *Registry
		bus      hooks.Bus
		log      telemetry.Logger
		run      Runner
		logDir   string

		mu      sync.Mutex
		cron    *cron.Cron
		entries map[string]cron.EntryID
	}
)

// NewScheduler wires a scheduler. workspaceDir hosts the .cron_logs
// directory; run fires the actual work.
func NewScheduler(store *Store, bus hooks.Bus, log telemetry.Logger, workspaceDir string, run Runner) *Scheduler {
	return &Scheduler{
		store:    store,
		registry: NewRegistry(),
		bus:      bus,
		log:      log,
		run:      run,
		logDir:   filepath.Join(workspaceDir, logDirName),
		cron:     cron.New(cron.WithParser(cronParser)),
		entries:  make(map[string]cron.EntryID),
	}
}

// Registry exposes the run registry for listings.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Start loads persisted jobs, schedules the unpaused ones and starts the
// cron engine.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if job.Paused {
			continue
		}
		if err := s.schedule(job); err != nil {
			s.log.Warn(ctx, "skipping unschedulable job", "job", job.ID, "err", err)
		}
	}
	s.cron.Start()
	s.log.Info(ctx, "scheduler started", "jobs", len(jobs))
	return nil
}

// Stop halts the cron engine and waits for in-flight runs started by it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	<-c.Stop().Done()
}

// Add validates, persists and schedules a new job. Paused jobs are persisted
// but not scheduled.
func (s *Scheduler) Add(name, task string, spec Spec) (*Job, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("schedule: job task is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	job := &Job{
		ID:      uuid.NewString(),
		Name:    name,
		Task:    task,
		Spec:    spec,
		Created: time.Now().UTC(),
	}
	if job.Name == "" {
		job.Name = firstLine(task, 40)
	}
	if err := s.store.Put(job); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.schedule(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Pause unschedules a job but keeps it persisted.
func (s *Scheduler) Pause(id string) error {
	job, err := s.store.SetPaused(id, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unschedule(job.ID)
	return nil
}

// Resume re-schedules a paused job.
func (s *Scheduler) Resume(id string) error {
	job, err := s.store.SetPaused(id, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(job)
}

// Remove unschedules and deletes a job.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	s.unschedule(id)
	s.mu.Unlock()
	return s.store.Delete(id)
}

// Jobs returns all persisted jobs sorted by creation time.
func (s *Scheduler) Jobs() ([]*Job, error) {
	jobs, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

// Fire runs a job immediately, outside its schedule. Used by tests and the
// run-now path.
func (s *Scheduler) Fire(job *Job) string {
	return s.fire(job)
}

// schedule registers the job's trigger with the cron engine. Caller holds
// the lock.
func (s *Scheduler) schedule(job *Job) error {
	if _, ok := s.entries[job.ID]; ok {
		return nil
	}
	var (
		sched cron.Schedule
		err   error
	)
	switch job.Spec.Kind {
	case KindCron:
		expr := job.Spec.Expression
		if job.Spec.Timezone != "" {
			expr = "CRON_TZ=" + job.Spec.Timezone + " " + expr
		}
		sched, err = cronParser.Parse(expr)
	case KindInterval:
		sched = cron.Every(time.Duration(job.Spec.Minutes) * time.Minute)
	case KindOnce:
		sched = &onceSchedule{at: job.Spec.At}
	default:
		err = fmt.Errorf("schedule: unknown trigger kind %q", job.Spec.Kind)
	}
	if err != nil {
		return err
	}
	captured := *job
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(&captured) }))
	s.entries[job.ID] = id
	return nil
}

// unschedule drops the cron entry for a job id. Caller holds the lock.
func (s *Scheduler) unschedule(id string) {
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// fire executes one scheduled run: registry record, bus broadcasts, log
// files, and the injected runner. Failures are recorded and broadcast;
// nothing propagates to the cron engine.
func (s *Scheduler) fire(job *Job) string {
	ctx := context.Background()
	runID := uuid.NewString()
	s.registry.Start(runID, job)
	s.publish(ctx, hooks.EventCronRunStart, job, runID, "")
	s.log.Info(ctx, "cron run start", "job", job.ID, "run", runID)

	record := func(line string) { s.registry.Event(runID, line) }
	result, err := s.run(ctx, job, record)
	s.registry.Finish(runID, result, err)
	s.writeRunLog(ctx, runID, err)

	if err != nil {
		s.publish(ctx, hooks.EventCronRunError, job, runID, err.Error())
		s.log.Error(ctx, "cron run failed", "job", job.ID, "run", runID, "err", err)
	} else {
		s.publish(ctx, hooks.EventCronRunDone, job, runID, "")
		s.log.Info(ctx, "cron run done", "job", job.ID, "run", runID)
	}
	return runID
}

// writeRunLog persists the run's event log under the workspace and, on
// failure, a companion error log.
func (s *Scheduler) writeRunLog(ctx context.Context, runID string, runErr error) {
	run := s.registry.Get(runID)
	if run == nil {
		return
	}
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		s.log.Warn(ctx, "cron log dir", "err", err)
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s job %s (%s)\nstarted %s\n", run.RunID, run.JobID, run.JobName,
		run.Started.Format(time.RFC3339))
	for _, line := range run.Events {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "status %s ended %s\n", run.Status, run.Ended.Format(time.RFC3339))
	if run.Result != "" {
		sb.WriteString(run.Result)
		sb.WriteByte('\n')
	}
	path := filepath.Join(s.logDir, runID+".log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		s.log.Warn(ctx, "cron log write", "err", err)
	}
	if runErr != nil {
		errPath := filepath.Join(s.logDir, runID+"_error.log")
		if err := os.WriteFile(errPath, []byte(runErr.Error()+"\n"), 0o644); err != nil {
			s.log.Warn(ctx, "cron error log write", "err", err)
		}
	}
}

func (s *Scheduler) publish(ctx context.Context, kind hooks.EventType, job *Job, runID, errMsg string) {
	event := hooks.Event{
		Type: kind,
		Time: time.Now().UTC(),
		Cron: &hooks.CronEvent{
			JobID:   job.ID,
			JobName: job.Name,
			RunID:   runID,
			Error:   errMsg,
		},
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn(ctx, "cron event publish", "err", err)
	}
}

// onceSchedule fires exactly once at a fixed time. After the fire time has
// passed the zero Next return makes the cron engine drop the entry.
type onceSchedule struct {
	at time.Time
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
