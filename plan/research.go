package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/model"
)

// Deep-research defaults; both are parameters of ResearchPlan.
const (
	DefaultSubtopics       = 5
	DefaultURLsPerSubtopic = 3
)

// genericAngles seeds subtopics when the subtopic-generation call fails.
var genericAngles = []string{
	"overview and background",
	"current state and recent developments",
	"key players and alternatives",
	"strengths, weaknesses and criticism",
	"outlook and open questions",
}

const subtopicsPrompt = `Break the research topic into %d distinct subtopics that together cover it well. Reply with a JSON array of %d short subtopic strings. JSON only, no prose.`

// ResearchPlan builds a fixed plan for deep research: one browser subtask
// per subtopic plus a final compile step. Subtopics come from a single LLM
// call; on failure, generic angles are used. client may be nil.
func ResearchPlan(ctx context.Context, client model.Client, modelID, topic string, subtopics, urlsPer int) []Subtask {
	if subtopics <= 0 {
		subtopics = DefaultSubtopics
	}
	if urlsPer <= 0 {
		urlsPer = DefaultURLsPerSubtopic
	}
	names := generateSubtopics(ctx, client, modelID, topic, subtopics)

	plan := make([]Subtask, 0, subtopics+1)
	for i, name := range names {
		plan = append(plan, Subtask{
			Task:   fmt.Sprintf("Research %q with focus on: %s", topic, name),
			Tool:   "browser",
			Output: fmt.Sprintf("subtopic_%d.md", i+1),
			Prompt: researchSystemPrompt(topic, name, urlsPer),
		})
	}
	plan = append(plan, Subtask{
		Task:   fmt.Sprintf("Compile a research report on %q from the subtopic findings", topic),
		Tool:   CompileTool,
		Output: "report.md",
	})
	return plan
}

func generateSubtopics(ctx context.Context, client model.Client, modelID, topic string, n int) []string {
	fallback := func() []string {
		names := make([]string, n)
		for i := range names {
			names[i] = genericAngles[i%len(genericAngles)]
		}
		return names
	}
	if client == nil {
		return fallback()
	}
	resp, err := client.Complete(ctx, model.Request{
		Model: modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: fmt.Sprintf(subtopicsPrompt, n, n)},
			{Role: model.RoleUser, Content: topic},
		},
	})
	if err != nil {
		return fallback()
	}
	body := strings.TrimSpace(resp.Content)
	if m := planFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	var names []string
	if err := json.Unmarshal([]byte(body), &names); err != nil || len(names) == 0 {
		return fallback()
	}
	if len(names) > n {
		names = names[:n]
	}
	for len(names) < n {
		names = append(names, genericAngles[len(names)%len(genericAngles)])
	}
	return names
}

func researchSystemPrompt(topic, subtopic string, urls int) string {
	return fmt.Sprintf(`You are researching one subtopic of a larger research task on %q.
Your subtopic: %s

Rules:
- Visit EXACTLY %d distinct URLs with the browser tool. Search first, then open the %d most promising results.
- Extract concrete facts, figures and quotes; note the source URL for each.
- Write your findings to the output file you are given, as markdown with a Sources section.

Workspace: {{.Workspace}}
Today's date: {{.Date}}
Context window: {{.ContextLimit}} tokens.`, topic, subtopic, urls, urls)
}

// RunResearch executes a research plan, wrapping Run with the research
// event taxonomy.
func (r *Runner) RunResearch(ctx context.Context, topic string, subtasks []Subtask) (*Result, error) {
	for i, st := range subtasks {
		if st.Tool == CompileTool {
			continue
		}
		r.publishResearch(ctx, hooks.EventResearchProgress, &hooks.ResearchEvent{
			Topic: topic, Subtopic: st.Task, Index: i, Total: len(subtasks) - 1,
		})
	}
	result, err := r.Run(ctx, topic, subtasks)
	if err != nil {
		r.publishResearch(ctx, hooks.EventResearchError, &hooks.ResearchEvent{
			Topic: topic, Error: err.Error(),
		})
		return nil, err
	}
	r.publishResearch(ctx, hooks.EventResearchComplete, &hooks.ResearchEvent{
		Topic: topic, OutputDir: result.RunDir,
	})
	return result, nil
}

func (r *Runner) publishResearch(ctx context.Context, kind hooks.EventType, payload *hooks.ResearchEvent) {
	event := hooks.Event{Type: kind, Time: time.Now().UTC(), Research: payload}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.log.Warn(ctx, "research event publish", "err", err)
	}
}
