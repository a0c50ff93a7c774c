package tools

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

func newShellTool(t *testing.T, enabled bool, timeout time.Duration) *ShellTool {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	return NewShellTool(ws, enabled, timeout)
}

func TestShellRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell")
	}
	st := newShellTool(t, true, 0)
	out := run(t, st, map[string]any{"action": "run", "command": "echo hello"})
	require.Equal(t, "hello\n", out)
}

func TestShellDisabled(t *testing.T) {
	st := newShellTool(t, false, 0)
	out := run(t, st, map[string]any{"action": "run", "command": "echo hi"})
	require.Contains(t, out, "disabled")
}

func TestShellExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell")
	}
	st := newShellTool(t, true, 0)
	out := run(t, st, map[string]any{"action": "run", "command": "echo oops >&2; exit 3"})
	require.Contains(t, out, "Exit code 3")
	require.Contains(t, out, "oops")
}

func TestShellTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell")
	}
	st := newShellTool(t, true, 200*time.Millisecond)
	out := run(t, st, map[string]any{"action": "run", "command": "sleep 5"})
	require.Contains(t, out, "timed out")
}

func TestShellOutputCap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell")
	}
	st := newShellTool(t, true, 0)
	out := run(t, st, map[string]any{"action": "run", "command": "yes x | head -c 20000"})
	require.LessOrEqual(t, len(out), shellOutputCap+len("\n...[truncated]"))
	require.True(t, strings.HasSuffix(out, "...[truncated]"))
}

func TestShellRunsInWorkspace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell")
	}
	st := newShellTool(t, true, 0)
	out := run(t, st, map[string]any{"action": "run", "command": "pwd"})
	require.Equal(t, st.ws.Root()+"\n", out)
}
