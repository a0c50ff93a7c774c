package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var knownTools = []string{"browser", "files", "shell", "cron"}

func TestParseFallbackInline(t *testing.T) {
	text := `I'll open the page now. browser{"action": "open", "url": "https://example.com"} Then I'll read it.`
	call, ok := parseFallbackCall(text, knownTools)
	require.True(t, ok)
	require.Equal(t, "browser", call.Name)
	require.Equal(t, "open", call.Args["action"])
	require.Equal(t, "https://example.com", call.Args["url"])
	require.Equal(t, "I'll open the page now.  Then I'll read it.", call.Cleaned)
}

func TestParseFallbackParens(t *testing.T) {
	text := `files({"action": "read", "path": "notes.md"})`
	call, ok := parseFallbackCall(text, knownTools)
	require.True(t, ok)
	require.Equal(t, "files", call.Name)
	require.Equal(t, "notes.md", call.Args["path"])
	require.Empty(t, call.Cleaned)
}

func TestParseFallbackEmptyParens(t *testing.T) {
	call, ok := parseFallbackCall("browser()", knownTools)
	require.True(t, ok)
	require.Equal(t, "browser", call.Name)
	require.Empty(t, call.Args)
}

func TestParseFallbackFencedArguments(t *testing.T) {
	text := "Let me check.\n```json\n{\"name\": \"browser\", \"arguments\": {\"action\": \"text\"}}\n```\nDone."
	call, ok := parseFallbackCall(text, knownTools)
	require.True(t, ok)
	require.Equal(t, "browser", call.Name)
	require.Equal(t, "text", call.Args["action"])
	require.Equal(t, "Let me check.\n\nDone.", call.Cleaned)
}

func TestParseFallbackFencedParameters(t *testing.T) {
	text := "```json\n{\"name\": \"shell\", \"parameters\": {\"action\": \"run\", \"command\": \"ls\"}}\n```"
	call, ok := parseFallbackCall(text, knownTools)
	require.True(t, ok)
	require.Equal(t, "shell", call.Name)
	require.Equal(t, "ls", call.Args["command"])
}

func TestParseFallbackRejects(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"plain prose", "The browser is a fine tool and files are stored safely."},
		{"unknown tool", `teleport{"action": "go"}`},
		{"word prefix", `webbrowser{"action": "open"}`},
		{"unbalanced braces", `browser{"action": "open"`},
		{"non-json body", `browser{action: open}`},
		{"fenced unknown name", "```json\n{\"name\": \"teleport\", \"arguments\": {}}\n```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseFallbackCall(tc.text, knownTools)
			require.False(t, ok)
		})
	}
}

func TestParseFallbackNestedBraces(t *testing.T) {
	text := `cron{"action": "add", "task": "say {hello} daily", "schedule": "0 9 * * *"}`
	call, ok := parseFallbackCall(text, knownTools)
	require.True(t, ok)
	require.Equal(t, "say {hello} daily", call.Args["task"])
}

func TestMatchNestedStrings(t *testing.T) {
	require.Equal(t, len(`{"a": "b\"}c"}`), matchBraces(`{"a": "b\"}c"}`))
	require.Equal(t, -1, matchBraces(`{"a": 1`))
}
