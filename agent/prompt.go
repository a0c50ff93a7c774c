package agent

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// defaultSystemPrompt is interpolated on every LLM call so the model always
// sees the current date and its own context pressure.
const defaultSystemPrompt = `You are Chauffeur, an autonomous assistant that drives a real Chromium browser and a sandboxed workspace to complete tasks for the user.

Ground rules:
- Use the browser tool to navigate, inspect and interact with pages. Run the elements action before clicking or typing so you address elements by index.
- All file paths are relative to the workspace; you cannot read or write outside it.
- Prefer doing the work over describing it. Call tools until the task is done, then answer concisely.
- If a page changed under you and an element index fails, run elements again.

Workspace: {{.Workspace}}
Today's date: {{.Date}}
Context window: {{.ContextLimit}} tokens. Your last prompt used {{.LastPromptTokens}} tokens ({{.PercentUsed}} of the window).`

// promptData carries the fields every system prompt template may reference.
type promptData struct {
	Workspace        string
	Date             string
	ContextLimit     int
	LastPromptTokens int
	PercentUsed      string
}

// renderSystemPrompt executes tmpl (the default when empty) with the
// agent's current state.
func renderSystemPrompt(tmpl, workspace string, contextLimit, lastPrompt int) (string, error) {
	if tmpl == "" {
		tmpl = defaultSystemPrompt
	}
	parsed, err := template.New("system").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("agent: system prompt template: %w", err)
	}
	pct := 0.0
	if contextLimit > 0 {
		pct = float64(lastPrompt) / float64(contextLimit) * 100
	}
	var sb strings.Builder
	err = parsed.Execute(&sb, promptData{
		Workspace:        workspace,
		Date:             time.Now().Format("2006-01-02"),
		ContextLimit:     contextLimit,
		LastPromptTokens: lastPrompt,
		PercentUsed:      fmt.Sprintf("%.1f%%", pct),
	})
	if err != nil {
		return "", fmt.Errorf("agent: system prompt render: %w", err)
	}
	return sb.String(), nil
}
