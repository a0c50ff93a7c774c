package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chauffeur-ai/chauffeur/schedule"
)

// CronTool exposes the scheduler to the LLM: job management plus run
// history. Firing happens inside the scheduler; this adapter only manages
// definitions.
type CronTool struct {
	scheduler *schedule.Scheduler
}

// NewCronTool builds the cron tool around a running scheduler.
func NewCronTool(scheduler *schedule.Scheduler) *CronTool {
	return &CronTool{scheduler: scheduler}
}

// Name implements Tool.
func (t *CronTool) Name() string { return "cron" }

// Description implements Tool.
func (t *CronTool) Description() string {
	return "Schedule recurring or one-shot agent tasks. " +
		"Actions: add, list, pause, resume, remove, history. " +
		"A job needs exactly one trigger: schedule (5-field cron expression, optional timezone), " +
		"interval_minutes, or at (RFC 3339 timestamp)."
}

// Schema implements Tool.
func (t *CronTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["add", "list", "pause", "resume", "remove", "history"]},
			"task": {"type": "string", "description": "Natural-language task the job runs (add only)"},
			"name": {"type": "string", "description": "Optional job name (add only)"},
			"schedule": {"type": "string", "description": "5-field cron expression, e.g. \"0 9 * * 1-5\""},
			"timezone": {"type": "string", "description": "IANA timezone for the cron expression"},
			"interval_minutes": {"type": "integer", "description": "Repeat period in minutes"},
			"at": {"type": "string", "description": "One-shot fire time, RFC 3339"},
			"job_id": {"type": "string", "description": "Target job for pause/resume/remove/history"}
		},
		"required": ["action"]
	}`)
}

// Execute implements Tool.
func (t *CronTool) Execute(_ context.Context, args map[string]any) string {
	switch action := argString(args, "action"); action {
	case "add":
		return t.add(args)
	case "list":
		return t.list()
	case "pause":
		return t.setPaused(argString(args, "job_id"), true)
	case "resume":
		return t.setPaused(argString(args, "job_id"), false)
	case "remove":
		return t.remove(argString(args, "job_id"))
	case "history":
		return t.history(argString(args, "job_id"))
	default:
		return fmt.Sprintf("Unknown cron action: %s", action)
	}
}

func (t *CronTool) add(args map[string]any) string {
	spec, err := triggerSpec(args)
	if err != nil {
		return err.Error()
	}
	job, err := t.scheduler.Add(argString(args, "name"), argString(args, "task"), spec)
	if err != nil {
		return fmt.Sprintf("Error adding job: %v", err)
	}
	return fmt.Sprintf("Scheduled job %s (%s): %s", job.ID, job.Name, job.Spec)
}

func (t *CronTool) list() string {
	jobs, err := t.scheduler.Jobs()
	if err != nil {
		return fmt.Sprintf("Error listing jobs: %v", err)
	}
	if len(jobs) == 0 {
		return "No scheduled jobs"
	}
	var sb strings.Builder
	for _, job := range jobs {
		state := "active"
		if job.Paused {
			state = "paused"
		}
		fmt.Fprintf(&sb, "%s [%s] %s - %s: %s\n", job.ID, state, job.Name, job.Spec, job.Task)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (t *CronTool) setPaused(id string, paused bool) string {
	if id == "" {
		return "cron pause/resume requires job_id"
	}
	var err error
	if paused {
		err = t.scheduler.Pause(id)
	} else {
		err = t.scheduler.Resume(id)
	}
	if err != nil {
		return fmt.Sprintf("Error updating job %s: %v", id, err)
	}
	if paused {
		return fmt.Sprintf("Paused job %s", id)
	}
	return fmt.Sprintf("Resumed job %s", id)
}

func (t *CronTool) remove(id string) string {
	if id == "" {
		return "cron remove requires job_id"
	}
	if err := t.scheduler.Remove(id); err != nil {
		return fmt.Sprintf("Error removing job %s: %v", id, err)
	}
	return fmt.Sprintf("Removed job %s", id)
}

func (t *CronTool) history(jobID string) string {
	runs := t.scheduler.Registry().List()
	if jobID != "" {
		runs = t.scheduler.Registry().ListJob(jobID)
	}
	if len(runs) == 0 {
		return "No recorded runs"
	}
	var sb strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&sb, "%s job=%s status=%s started=%s", run.RunID, run.JobID,
			run.Status, run.Started.Format(time.RFC3339))
		if run.Error != "" {
			fmt.Fprintf(&sb, " error=%s", run.Error)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// triggerSpec builds the schedule spec from the mutually exclusive trigger
// arguments.
func triggerSpec(args map[string]any) (schedule.Spec, error) {
	expr := argString(args, "schedule")
	minutes := argInt(args, "interval_minutes", 0)
	at := argString(args, "at")

	set := 0
	for _, present := range []bool{expr != "", minutes > 0, at != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return schedule.Spec{}, fmt.Errorf(
			"cron add requires exactly one of schedule, interval_minutes, at")
	}
	switch {
	case expr != "":
		return schedule.Spec{Kind: schedule.KindCron, Expression: expr,
			Timezone: argString(args, "timezone")}, nil
	case minutes > 0:
		return schedule.Spec{Kind: schedule.KindInterval, Minutes: minutes}, nil
	default:
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return schedule.Spec{}, fmt.Errorf("cron add: bad timestamp %q: %v", at, err)
		}
		return schedule.Spec{Kind: schedule.KindOnce, At: ts}, nil
	}
}
