package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/schedule"
	"github.com/chauffeur-ai/chauffeur/telemetry"
)

func newCronTool(t *testing.T) (*CronTool, *schedule.Scheduler) {
	t.Helper()
	dir := t.TempDir()
	runner := func(_ context.Context, job *schedule.Job, record func(string)) (string, error) {
		record("ran " + job.Task)
		return "ok", nil
	}
	s := schedule.NewScheduler(schedule.NewStore(filepath.Join(dir, "jobs.json")),
		hooks.NewBus(), telemetry.NewNoopLogger(), dir, runner)
	return NewCronTool(s), s
}

func TestCronAddListRemove(t *testing.T) {
	ct, _ := newCronTool(t)

	out := run(t, ct, map[string]any{"action": "add", "task": "check the news",
		"schedule": "0 9 * * 1-5", "timezone": "America/New_York"})
	require.Contains(t, out, "Scheduled job")
	require.Contains(t, out, "0 9 * * 1-5 (America/New_York)")

	out = run(t, ct, map[string]any{"action": "list"})
	require.Contains(t, out, "[active]")
	require.Contains(t, out, "check the news")
	jobID := strings.Fields(out)[0]

	out = run(t, ct, map[string]any{"action": "pause", "job_id": jobID})
	require.Equal(t, "Paused job "+jobID, out)
	out = run(t, ct, map[string]any{"action": "list"})
	require.Contains(t, out, "[paused]")

	out = run(t, ct, map[string]any{"action": "resume", "job_id": jobID})
	require.Equal(t, "Resumed job "+jobID, out)

	out = run(t, ct, map[string]any{"action": "remove", "job_id": jobID})
	require.Equal(t, "Removed job "+jobID, out)
	out = run(t, ct, map[string]any{"action": "list"})
	require.Equal(t, "No scheduled jobs", out)
}

func TestCronAddTriggerValidation(t *testing.T) {
	ct, _ := newCronTool(t)

	out := run(t, ct, map[string]any{"action": "add", "task": "t"})
	require.Contains(t, out, "exactly one of")

	out = run(t, ct, map[string]any{"action": "add", "task": "t",
		"schedule": "* * * * *", "interval_minutes": 5})
	require.Contains(t, out, "exactly one of")

	out = run(t, ct, map[string]any{"action": "add", "task": "t", "at": "next tuesday"})
	require.Contains(t, out, "bad timestamp")

	out = run(t, ct, map[string]any{"action": "add", "task": "t", "schedule": "bad expr"})
	require.Contains(t, out, "Error adding job")
}

func TestCronHistory(t *testing.T) {
	ct, s := newCronTool(t)

	out := run(t, ct, map[string]any{"action": "history"})
	require.Equal(t, "No recorded runs", out)

	job, err := s.Add("news", "check the news", schedule.Spec{
		Kind: schedule.KindInterval, Minutes: 60})
	require.NoError(t, err)
	s.Fire(job)

	out = run(t, ct, map[string]any{"action": "history"})
	require.Contains(t, out, "status=done")
	require.Contains(t, out, "job="+job.ID)

	out = run(t, ct, map[string]any{"action": "history", "job_id": "other"})
	require.Equal(t, "No recorded runs", out)
}

func TestCronMissingJobID(t *testing.T) {
	ct, _ := newCronTool(t)
	out := run(t, ct, map[string]any{"action": "pause"})
	require.Contains(t, out, "requires job_id")
	out = run(t, ct, map[string]any{"action": "remove"})
	require.Contains(t, out, "requires job_id")
}
