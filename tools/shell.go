package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellOutputCap      = 10240
)

// ShellTool runs a single command string through the OS shell with the
// workspace as the working directory. The whole tool can be switched off in
// config.
type ShellTool struct {
	ws      *workspace.Workspace
	enabled bool
	timeout time.Duration
}

// NewShellTool builds the shell tool. timeout <= 0 uses the 30s default.
func NewShellTool(ws *workspace.Workspace, enabled bool, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = shellDefaultTimeout
	}
	return &ShellTool{ws: ws, enabled: enabled, timeout: timeout}
}

// Name implements Tool.
func (t *ShellTool) Name() string { return "shell" }

// Description implements Tool.
func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace directory. Actions: run."
}

// Schema implements Tool.
func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["run"]},
			"command": {"type": "string", "description": "The command line to execute"}
		},
		"required": ["action", "command"]
	}`)
}

// Execute implements Tool.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) string {
	if !t.enabled {
		return "Shell tool is disabled in the configuration"
	}
	if action := argString(args, "action"); action != "run" {
		return fmt.Sprintf("Unknown shell action: %s", action)
	}
	command := argString(args, "command")
	if command == "" {
		return "shell requires a command"
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = t.ws.Root()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	combined := out.String()
	if len(combined) > shellOutputCap {
		combined = combined[:shellOutputCap] + "\n...[truncated]"
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("Command timed out after %s\n%s", t.timeout, combined)
	case err != nil:
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return fmt.Sprintf("Exit code %d\n%s", exitCode, combined)
	case combined == "":
		return "Command completed with no output"
	default:
		return combined
	}
}
