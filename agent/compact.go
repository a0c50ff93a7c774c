package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chauffeur-ai/chauffeur/model"
)

// dumpDirName is the workspace directory context dumps land in.
const dumpDirName = "context_dumps"

// Per-message caps applied when rendering the dump file and the compact
// summary.
const (
	dumpMessageCap     = 5000
	dumpToolMessageCap = 2000
	summaryUserCap     = 500
	summaryAssistCap   = 1000
	summaryTotalCap    = 8000
)

// writeDump renders the conversation to a markdown file under
// <workspace>/context_dumps and returns its path. Caller holds the lock.
func (a *Agent) writeDump(reason string) (string, error) {
	dir := filepath.Join(a.workspace.Root(), dumpDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("agent: dump dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("dump_%d.md", time.Now().Unix()))

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Context dump\n\n")
	fmt.Fprintf(&sb, "- time: %s\n- reason: %s\n- model: %s\n", time.Now().Format(time.RFC3339), reason, a.modelID)
	fmt.Fprintf(&sb, "- prompt tokens: %d\n- completion tokens: %d\n\n", a.usage.PromptTokens, a.usage.CompletionTokens)
	for _, msg := range a.messages {
		limit := dumpMessageCap
		if msg.Role == model.RoleTool || len(msg.ToolCalls) > 0 {
			limit = dumpToolMessageCap
		}
		fmt.Fprintf(&sb, "## %s\n\n", msg.Role)
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&sb, "tool call `%s`: %s\n\n", call.Name, truncate(call.Arguments, limit))
		}
		if msg.Content != "" {
			fmt.Fprintf(&sb, "%s\n\n", truncate(msg.Content, limit))
		}
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("agent: write dump: %w", err)
	}
	return path, nil
}

// summarize builds the compact conversation summary embedded in the
// synthetic replacement message. Caller holds the lock.
func (a *Agent) summarize() string {
	var sb strings.Builder
	for _, msg := range a.messages {
		switch msg.Role {
		case model.RoleUser:
			fmt.Fprintf(&sb, "user: %s\n", truncate(msg.Content, summaryUserCap))
		case model.RoleAssistant:
			line := truncate(msg.Content, summaryAssistCap)
			if len(msg.ToolCalls) > 0 {
				names := make([]string, len(msg.ToolCalls))
				for i, call := range msg.ToolCalls {
					names[i] = call.Name
				}
				line = fmt.Sprintf("%s [called: %s]", line, strings.Join(names, ", "))
			}
			fmt.Fprintf(&sb, "assistant: %s\n", line)
		case model.RoleTool:
			fmt.Fprintf(&sb, "tool: [tool result: %d chars]\n", len(msg.Content))
		}
	}
	return truncate(sb.String(), summaryTotalCap)
}

// compact dumps the conversation, replaces it with one synthetic user
// message pointing at the dump, and resets the cumulative counters.
// Lifetime totals are preserved so cost tracking survives compaction.
// Caller holds the lock.
func (a *Agent) compact(reason string) (string, error) {
	path, err := a.writeDump(reason)
	if err != nil {
		return "", err
	}
	summary := a.summarize()

	synthetic := fmt.Sprintf(`The conversation context was compacted (%s). The full history was saved to %s.

Treat this as a fresh context window. If you need a specific detail from earlier (a URL, a value, an intermediate result), recover it with the files tool's grep action against the %s directory instead of reading the dump wholesale.

Summary of the conversation so far:

%s`, reason, path, dumpDirName, summary)

	a.messages = []model.Message{{Role: model.RoleUser, Content: synthetic}}
	a.lifetime.PromptTokens += a.usage.PromptTokens
	a.lifetime.CompletionTokens += a.usage.CompletionTokens
	a.usage = model.TokenUsage{}
	a.lastPromptTokens = 0
	a.compactions++
	return path, nil
}

// truncate caps s at max bytes, backing up to a rune boundary so the cut
// never leaves a partial UTF-8 sequence before the ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
