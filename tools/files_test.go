package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

func newFilesTool(t *testing.T) (*FilesTool, string) {
	t.Helper()
	dir := t.TempDir()
	ws, err := workspace.New(dir)
	require.NoError(t, err)
	return NewFilesTool(ws), ws.Root()
}

func run(t *testing.T, tool Tool, args map[string]any) string {
	t.Helper()
	return tool.Execute(t.Context(), args)
}

func TestFilesWriteAndRead(t *testing.T) {
	ft, _ := newFilesTool(t)
	out := run(t, ft, map[string]any{"action": "write", "path": "notes/todo.md", "content": "buy milk"})
	require.Equal(t, "Wrote 8 bytes to notes/todo.md", out)
	out = run(t, ft, map[string]any{"action": "read", "path": "notes/todo.md"})
	require.Equal(t, "buy milk", out)
}

func TestFilesReadCap(t *testing.T) {
	ft, root := newFilesTool(t)
	big := strings.Repeat("a", fileReadCap+100)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(big), 0o644))
	out := run(t, ft, map[string]any{"action": "read", "path": "big.txt"})
	require.True(t, strings.HasSuffix(out, "...[truncated]"))
	require.Less(t, len(out), len(big))
}

func TestFilesReadCapKeepsRuneWhole(t *testing.T) {
	ft, root := newFilesTool(t)
	// the cap lands inside the two-byte rune straddling byte 100
	big := strings.Repeat("a", 99) + strings.Repeat("é", 40)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(big), 0o644))
	out := run(t, ft, map[string]any{"action": "read", "path": "big.txt", "max_bytes": 100})
	require.True(t, utf8.ValidString(out))
	require.True(t, strings.HasSuffix(out, "...[truncated]"))
}

func TestFilesEscapeDenied(t *testing.T) {
	ft, _ := newFilesTool(t)
	out := run(t, ft, map[string]any{"action": "read", "path": "../../etc/passwd"})
	require.Contains(t, out, "Permission denied")
}

func TestFilesDeleteRootRefused(t *testing.T) {
	ft, _ := newFilesTool(t)
	out := run(t, ft, map[string]any{"action": "delete", "path": "."})
	require.Contains(t, out, "refusing to delete the workspace root")
}

func TestFilesMoveCopyInfo(t *testing.T) {
	ft, _ := newFilesTool(t)
	run(t, ft, map[string]any{"action": "write", "path": "a.txt", "content": "data"})
	out := run(t, ft, map[string]any{"action": "copy", "path": "a.txt", "dest": "b.txt"})
	require.Equal(t, "Copied a.txt to b.txt", out)
	out = run(t, ft, map[string]any{"action": "move", "path": "a.txt", "dest": "c.txt"})
	require.Equal(t, "Moved a.txt to c.txt", out)
	out = run(t, ft, map[string]any{"action": "info", "path": "c.txt"})
	require.Contains(t, out, "file, 4 bytes")
	out = run(t, ft, map[string]any{"action": "list", "path": "."})
	require.Contains(t, out, "b.txt (4 bytes)")
	require.NotContains(t, out, "a.txt")
}

func TestFilesGrep(t *testing.T) {
	ft, root := newFilesTool(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.md"), []byte("Total Revenue: 100\nexpenses: 40"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte("revenue here too"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.bin"), []byte("revenue in wrong extension"), 0o644))

	out := run(t, ft, map[string]any{"action": "grep", "pattern": "REVENUE"})
	require.Contains(t, out, "report.md:1: Total Revenue: 100")
	require.NotContains(t, out, "node_modules")
	require.NotContains(t, out, "binary.bin")
}

func TestFilesGrepCapsMatches(t *testing.T) {
	ft, root := newFilesTool(t)
	lines := strings.Repeat("needle\n", grepMaxMatches+20)
	require.NoError(t, os.WriteFile(filepath.Join(root, "many.txt"), []byte(lines), 0o644))
	out := run(t, ft, map[string]any{"action": "grep", "pattern": "needle"})
	require.Contains(t, out, "50 match(es)")
}

func TestFilesUnknownAction(t *testing.T) {
	ft, _ := newFilesTool(t)
	out := run(t, ft, map[string]any{"action": "truncate"})
	require.Contains(t, out, "Unknown files action")
}
