// Package plan turns a user task into an execution plan and runs it as a
// sequence of fresh sub-agents, one per subtask. Decomposition is an
// optimization: any parse or validation failure falls back to handling the
// task directly in the main agent loop.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chauffeur-ai/chauffeur/model"
)

// Plan sizes accepted from the decomposition call.
const (
	minSubtasks = 2
	maxSubtasks = 10
)

// CompileTool names the mandatory final synthesis step.
const CompileTool = "compile"

// Subtask is one step of a decomposed plan.
type Subtask struct {
	// Task is the natural-language instruction for the sub-agent.
	Task string `json:"task"`
	// Tool names the single tool the sub-agent must use, or "compile" for
	// the final synthesis step.
	Tool string `json:"tool"`
	// Output is the artifact filename, relative to the run directory.
	Output string `json:"output"`
	// Prompt optionally replaces the generic subtask system prompt
	// (research mode). Never produced by the decomposer.
	Prompt string `json:"-"`
}

const decomposePrompt = `You are a task planner. Decide whether the user's task needs to be broken into subtasks.

Reply with EXACTLY ONE of:
1. {"simple": true} when the task can be handled directly in one pass.
2. A JSON array of 2 to 10 subtask objects for multi-step tasks. Each object has:
   - "task": a self-contained instruction
   - "tool": the single tool that step uses (browser, files, pdf, spreadsheet, shell, cron)
   - "output": a filename the step writes its result to
   The LAST subtask must have "tool": "compile" and synthesize the prior outputs into the final answer.

No prose, no explanation. JSON only.`

// Decompose asks the model to plan the task. The returned bool reports
// whether a usable plan was produced; false means handle the task directly.
// The call never uses tools and never fails the caller: errors degrade to
// simple.
func Decompose(ctx context.Context, client model.Client, modelID, task string) ([]Subtask, bool) {
	resp, err := client.Complete(ctx, model.Request{
		Model: modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: decomposePrompt},
			{Role: model.RoleUser, Content: task},
		},
	})
	if err != nil {
		return nil, false
	}
	return ParsePlan(resp.Content)
}

var planFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParsePlan extracts a subtask plan from decomposer output. It accepts JSON
// inside triple-backtick fences, bare {"simple": ...} objects and bare
// arrays. Anything unparseable or invalid reads as simple.
func ParsePlan(text string) ([]Subtask, bool) {
	body := strings.TrimSpace(text)
	if m := planFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	switch {
	case strings.HasPrefix(body, "{"):
		return nil, false
	case strings.HasPrefix(body, "["):
		var subtasks []Subtask
		if err := json.Unmarshal([]byte(body), &subtasks); err != nil {
			return nil, false
		}
		if err := validatePlan(subtasks); err != nil {
			return nil, false
		}
		return subtasks, true
	default:
		return nil, false
	}
}

func validatePlan(subtasks []Subtask) error {
	if len(subtasks) < minSubtasks || len(subtasks) > maxSubtasks {
		return fmt.Errorf("plan: %d subtasks outside [%d, %d]", len(subtasks), minSubtasks, maxSubtasks)
	}
	for i, st := range subtasks {
		if strings.TrimSpace(st.Task) == "" || st.Tool == "" || st.Output == "" {
			return fmt.Errorf("plan: subtask %d incomplete", i)
		}
	}
	if subtasks[len(subtasks)-1].Tool != CompileTool {
		return fmt.Errorf("plan: last subtask tool is %q, want %q", subtasks[len(subtasks)-1].Tool, CompileTool)
	}
	return nil
}
