package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes the message argument" }
func (e *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["echo"]},
			"message": {"type": "string"}
		},
		"required": ["action"]
	}`)
}
func (e *echoTool) Execute(_ context.Context, args map[string]any) string {
	return "echo: " + argString(args, "message")
}

func TestRegistryDispatch(t *testing.T) {
	r, err := NewRegistry(&echoTool{name: "echo"})
	require.NoError(t, err)
	out := r.Execute(t.Context(), "echo", map[string]any{"action": "echo", "message": "hi"})
	require.Equal(t, "echo: hi", out)
}

func TestRegistryUnknownTool(t *testing.T) {
	r, err := NewRegistry(&echoTool{name: "echo"})
	require.NoError(t, err)
	out := r.Execute(t.Context(), "nope", nil)
	require.Contains(t, out, "Unknown tool: nope")
	require.Contains(t, out, "echo")
}

func TestRegistrySchemaViolation(t *testing.T) {
	r, err := NewRegistry(&echoTool{name: "echo"})
	require.NoError(t, err)
	// action is required but missing
	out := r.Execute(t.Context(), "echo", map[string]any{"message": "hi"})
	require.Contains(t, out, "Invalid arguments for echo")
	// wrong enum value
	out = r.Execute(t.Context(), "echo", map[string]any{"action": "shout"})
	require.Contains(t, out, "Invalid arguments for echo")
}

func TestRegistryDuplicateTool(t *testing.T) {
	_, err := NewRegistry(&echoTool{name: "echo"}, &echoTool{name: "echo"})
	require.Error(t, err)
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r, err := NewRegistry(&echoTool{name: "zeta"}, &echoTool{name: "alpha"})
	require.NoError(t, err)
	defs := r.Definitions()
	require.Len(t, defs, 2)
	require.Equal(t, "alpha", defs[0].Name)
	require.Equal(t, "zeta", defs[1].Name)
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":    "text",
		"n":    float64(7),
		"b":    true,
		"list": []any{"a", "b"},
		"rows": []any{[]any{"x", float64(1)}, []any{"y", float64(2)}},
	}
	require.Equal(t, "text", argString(args, "s"))
	require.Equal(t, "fallback", argStringDefault(args, "missing", "fallback"))
	require.Equal(t, 7, argInt(args, "n", 0))
	require.Equal(t, 42, argInt(args, "missing", 42))
	require.True(t, argBool(args, "b"))
	require.Equal(t, []string{"a", "b"}, argStringSlice(args, "list"))
	require.Equal(t, [][]string{{"x", "1"}, {"y", "2"}}, argRows(args, "rows"))
}
