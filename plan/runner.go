package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chauffeur-ai/chauffeur/agent"
	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/model"
	"github.com/chauffeur-ai/chauffeur/telemetry"
	"github.com/chauffeur-ai/chauffeur/workspace"
)

// runDirName is the workspace directory subtask runs land in.
const runDirName = "subtask_runs"

// Subtask statuses reported in Result.
const (
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type (
	// AgentFactory builds a fresh sub-agent with the given system prompt.
	// Implementations must disable decomposition on the returned agent so
	// plans cannot recurse.
	AgentFactory func(systemPrompt string) (*agent.Agent, error)

	// Cleanup releases per-subtask browser state (opened tabs). May be nil.
	Cleanup func(ctx context.Context)

	// Runner executes a plan sequentially with one fresh sub-agent per
	// subtask.
	Runner struct {
		factory AgentFactory
		cleanup Cleanup
		bus     hooks.Bus
		log     telemetry.Logger
		ws      *workspace.Workspace
		// parent, when set, has its probe delegated to the active
		// sub-agent for the duration of the run.
		parent *agent.Agent

		abort atomic.Bool
	}

	// SubtaskResult records one executed step.
	SubtaskResult struct {
		Subtask
		Status     string `json:"status"`
		OutputPath string `json:"output_path,omitempty"`
		Error      string `json:"error,omitempty"`
	}

	// Result is the outcome of a full plan run.
	Result struct {
		RunDir   string
		Output   string
		Subtasks []SubtaskResult
		Usage    model.TokenUsage
	}
)

// NewRunner wires a subtask runner. parent and cleanup may be nil.
func NewRunner(factory AgentFactory, ws *workspace.Workspace, bus hooks.Bus, log telemetry.Logger, parent *agent.Agent, cleanup Cleanup) *Runner {
	if bus == nil {
		bus = hooks.NewBus()
	}
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Runner{factory: factory, cleanup: cleanup, bus: bus, log: log, ws: ws, parent: parent}
}

// Abort stops the run after the current subtask: it is marked failed and
// the remaining ones are skipped.
func (r *Runner) Abort() { r.abort.Store(true) }

// Run executes the plan. Completed subtasks keep their outputs even when a
// later one fails or the run is aborted.
func (r *Runner) Run(ctx context.Context, task string, subtasks []Subtask) (*Result, error) {
	runDir := filepath.Join(r.ws.Root(), runDirName, fmt.Sprintf("run_%d", time.Now().Unix()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("plan: run dir: %w", err)
	}

	if r.parent != nil {
		r.parent.SetPhase(agent.PhaseRunningSubtasks)
		defer r.parent.SetDelegate(nil)
	}

	planLines := make([]string, len(subtasks))
	for i, st := range subtasks {
		planLines[i] = fmt.Sprintf("%d. [%s] %s -> %s", i+1, st.Tool, st.Task, st.Output)
	}
	r.publish(ctx, &hooks.SubtaskEvent{Phase: hooks.SubtaskPhasePlan, Total: len(subtasks), Plan: planLines})

	result := &Result{RunDir: runDir}
	var doneOutputs []string
	aborted := false

	for i, st := range subtasks {
		res := SubtaskResult{Subtask: st, OutputPath: filepath.Join(runDir, st.Output)}
		if aborted {
			res.Status = StatusSkipped
			result.Subtasks = append(result.Subtasks, res)
			continue
		}

		start := time.Now()
		r.publish(ctx, &hooks.SubtaskEvent{
			Phase: hooks.SubtaskPhaseStart, Index: i, Total: len(subtasks),
			Task: st.Task, Tool: st.Tool, Output: st.Output,
		})
		output, usage, err := r.runSubtask(ctx, task, st, i, len(subtasks), runDir, doneOutputs)
		result.Usage.PromptTokens += usage.PromptTokens
		result.Usage.CompletionTokens += usage.CompletionTokens

		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
			r.log.Warn(ctx, "subtask failed", "index", i, "err", err)
		} else {
			res.Status = StatusDone
			doneOutputs = append(doneOutputs, res.OutputPath)
			if st.Tool == CompileTool {
				result.Output = output
			}
		}
		r.publish(ctx, &hooks.SubtaskEvent{
			Phase: hooks.SubtaskPhaseDone, Index: i, Total: len(subtasks),
			Task: st.Task, Status: res.Status, Elapsed: time.Since(start).Seconds(),
		})
		result.Subtasks = append(result.Subtasks, res)

		if r.abort.Load() {
			// the abort lands on the subtask that was running
			if res.Status == StatusDone {
				result.Subtasks[len(result.Subtasks)-1].Status = StatusFailed
			}
			aborted = true
		}
	}
	return result, nil
}

// runSubtask executes one step with a fresh sub-agent and guarantees the
// output file exists afterwards, synthesizing it from the final text when
// the sub-agent never wrote it.
func (r *Runner) runSubtask(ctx context.Context, task string, st Subtask, index, total int, runDir string, priorOutputs []string) (string, model.TokenUsage, error) {
	var system, user string
	switch {
	case st.Tool == CompileTool:
		system = compileSystemPrompt(total)
		user = compileUserMessage(task, st, runDir, priorOutputs)
	case st.Prompt != "":
		system = st.Prompt
		user = subtaskUserMessage(st, runDir, priorOutputs)
	default:
		system = subtaskSystemPrompt(st, index, total)
		user = subtaskUserMessage(st, runDir, priorOutputs)
	}

	sub, err := r.factory(system)
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	if r.parent != nil {
		r.parent.SetDelegate(sub.Probe)
	}
	if r.cleanup != nil {
		defer r.cleanup(ctx)
	}

	onChunk := func(text string) {
		r.publish(ctx, &hooks.SubtaskEvent{
			Phase: hooks.SubtaskPhaseStreamChunk, Index: index, Total: total,
			Output: text,
		})
	}
	final, err := sub.Chat(ctx, user, onChunk)
	usage := sub.Usage()
	if err != nil {
		return "", usage, err
	}

	outputPath := filepath.Join(runDir, st.Output)
	if _, statErr := os.Stat(outputPath); statErr != nil {
		if writeErr := os.WriteFile(outputPath, []byte(final), 0o644); writeErr != nil {
			return final, usage, fmt.Errorf("plan: synthesize output: %w", writeErr)
		}
	}
	return final, usage, nil
}

func (r *Runner) publish(ctx context.Context, sub *hooks.SubtaskEvent) {
	event := hooks.Event{Type: hooks.EventSubtaskProgress, Time: time.Now().UTC(), Subtask: sub}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.log.Warn(ctx, "subtask event publish", "err", err)
	}
}

func subtaskSystemPrompt(st Subtask, index, total int) string {
	return fmt.Sprintf(`You are executing subtask %d of %d in a larger plan. Stay strictly within this subtask.

Rules:
- Use ONLY the %s tool (plus files for writing your output).
- Write your final artifact to the output file you are given. The file must contain the complete result, not a summary of what you did.
- Earlier subtasks may have produced output files; read them with the files tool if your step needs their results.
- Work within your context window; keep intermediate output small.

Workspace: {{.Workspace}}
Today's date: {{.Date}}
Context window: {{.ContextLimit}} tokens.`, index+1, total, st.Tool)
}

func subtaskUserMessage(st Subtask, runDir string, priorOutputs []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subtask: %s\n\nWrite your result to: %s\n", st.Task, filepath.Join(runDir, st.Output))
	if len(priorOutputs) > 0 {
		sb.WriteString("\nOutputs from earlier subtasks:\n")
		for _, p := range priorOutputs {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	return sb.String()
}

func compileSystemPrompt(total int) string {
	return fmt.Sprintf(`You are the final compile step of a %d-step plan. Every prior subtask has written its result to a file.

Rules:
- Read each listed output file with the files tool.
- Synthesize ONE coherent final artifact that answers the original task.
- Write it to the output file you are given, and also return it as your final message.

Workspace: {{.Workspace}}
Today's date: {{.Date}}
Context window: {{.ContextLimit}} tokens.`, total)
}

func compileUserMessage(task string, st Subtask, runDir string, priorOutputs []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original task: %s\n\nSubtask outputs to synthesize:\n", task)
	for _, p := range priorOutputs {
		fmt.Fprintf(&sb, "- %s\n", p)
	}
	fmt.Fprintf(&sb, "\nWrite the final artifact to: %s\n", filepath.Join(runDir, st.Output))
	return sb.String()
}
