package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

// File reading and grep output caps.
const (
	fileReadCap    = 8192
	fileReadCapMax = 51200
	grepMaxMatches = 50
	grepMaxFile    = 1 << 20
)

// grepDefaultGlobs is the restricted pattern set grep walks when the caller
// does not narrow it.
var grepDefaultGlobs = []string{"*.md", "*.txt", "*.py", "*.json", "*.csv", "*.html", "*.js"}

// grepSkipDirs are directory names the grep walk never descends into.
var grepSkipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
	".venv":        true,
	"env":          true,
}

// FilesTool is the workspace-sandboxed filesystem capability.
type FilesTool struct {
	ws *workspace.Workspace
}

// NewFilesTool builds the files tool over a workspace.
func NewFilesTool(ws *workspace.Workspace) *FilesTool {
	return &FilesTool{ws: ws}
}

// Name implements Tool.
func (t *FilesTool) Name() string { return "files" }

// Description implements Tool.
func (t *FilesTool) Description() string {
	return "Read, write and manage files inside the workspace. " +
		"Actions: read, write, list, move, copy, delete, mkdir, info, grep."
}

// Schema implements Tool.
func (t *FilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["read", "write", "list", "move", "copy", "delete", "mkdir", "info", "grep"],
				"description": "The file operation to perform"
			},
			"path": {"type": "string", "description": "Path relative to the workspace"},
			"content": {"type": "string", "description": "Content for write"},
			"dest": {"type": "string", "description": "Destination path for move/copy"},
			"pattern": {"type": "string", "description": "Substring to search for with grep (case-insensitive)"},
			"max_bytes": {"type": "integer", "description": "Read cap in bytes (default 8192, max 51200)"}
		},
		"required": ["action"]
	}`)
}

// Execute implements Tool.
func (t *FilesTool) Execute(_ context.Context, args map[string]any) string {
	action := argString(args, "action")
	switch action {
	case "read":
		return t.read(argString(args, "path"), argInt(args, "max_bytes", fileReadCap))
	case "write":
		return t.write(argString(args, "path"), argString(args, "content"))
	case "list":
		return t.list(argStringDefault(args, "path", "."))
	case "move":
		return t.transfer(argString(args, "path"), argString(args, "dest"), true)
	case "copy":
		return t.transfer(argString(args, "path"), argString(args, "dest"), false)
	case "delete":
		return t.delete(argString(args, "path"))
	case "mkdir":
		return t.mkdir(argString(args, "path"))
	case "info":
		return t.info(argString(args, "path"))
	case "grep":
		return t.grep(argString(args, "pattern"), argStringDefault(args, "path", "."))
	default:
		return fmt.Sprintf("Unknown files action: %s", action)
	}
}

// resolve maps a tool path into the workspace, translating escapes into the
// permission-denied result string.
func (t *FilesTool) resolve(p string) (string, string) {
	abs, err := t.ws.Resolve(p)
	if err != nil {
		return "", fmt.Sprintf("Permission denied: %s is outside the workspace", p)
	}
	return abs, ""
}

func (t *FilesTool) read(path string, limit int) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	if limit <= 0 || limit > fileReadCapMax {
		limit = fileReadCapMax
	}
	f, err := os.Open(abs)
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", path, err)
	}
	if len(data) > limit {
		// back up to a rune boundary so the cap never splits a UTF-8
		// sequence
		cut := limit
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		return string(data[:cut]) + "\n...[truncated]"
	}
	return string(data)
}

func (t *FilesTool) write(path, content string) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Sprintf("Error writing %s: %v", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error writing %s: %v", path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path)
}

func (t *FilesTool) list(path string) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Sprintf("Error listing %s: %v", path, err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s is empty", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&sb, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name(), info.Size())
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (t *FilesTool) transfer(src, dest string, move bool) string {
	verb := "copy"
	if move {
		verb = "move"
	}
	srcAbs, denied := t.resolve(src)
	if denied != "" {
		return denied
	}
	destAbs, denied := t.resolve(dest)
	if denied != "" {
		return denied
	}
	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return fmt.Sprintf("Error on %s: %v", verb, err)
	}
	if move {
		if err := os.Rename(srcAbs, destAbs); err != nil {
			return fmt.Sprintf("Error moving %s: %v", src, err)
		}
		return fmt.Sprintf("Moved %s to %s", src, dest)
	}
	data, err := os.ReadFile(srcAbs)
	if err != nil {
		return fmt.Sprintf("Error copying %s: %v", src, err)
	}
	if err := os.WriteFile(destAbs, data, 0o644); err != nil {
		return fmt.Sprintf("Error copying %s: %v", src, err)
	}
	return fmt.Sprintf("Copied %s to %s", src, dest)
}

func (t *FilesTool) delete(path string) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	if t.ws.IsRoot(abs) {
		return "Permission denied: refusing to delete the workspace root"
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Sprintf("Error deleting %s: %v", path, err)
	}
	return fmt.Sprintf("Deleted %s", path)
}

func (t *FilesTool) mkdir(path string) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Sprintf("Error creating %s: %v", path, err)
	}
	return fmt.Sprintf("Created directory %s", path)
}

func (t *FilesTool) info(path string) string {
	abs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Sprintf("Error on %s: %v", path, err)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("%s: %s, %d bytes, modified %s",
		path, kind, info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
}

// grep walks the workspace matching a case-insensitive substring against
// files within the default glob set. Hidden and dependency directories are
// skipped, as are files over 1 MB. Output is capped at 50 matching lines.
func (t *FilesTool) grep(pattern, path string) string {
	if pattern == "" {
		return "grep requires a pattern"
	}
	rootAbs, denied := t.resolve(path)
	if denied != "" {
		return denied
	}
	needle := strings.ToLower(pattern)
	var matches []string
	err := filepath.WalkDir(rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != rootAbs && (grepSkipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= grepMaxMatches {
			return filepath.SkipAll
		}
		if !matchesAnyGlob(name, grepDefaultGlobs) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > grepMaxFile {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(t.ws.Root(), p)
		if err != nil {
			rel = name
		}
		for lineNo, line := range strings.Split(string(data), "\n") {
			if len(matches) >= grepMaxMatches {
				break
			}
			if strings.Contains(strings.ToLower(line), needle) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, lineNo+1, strings.TrimSpace(line)))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("Error searching: %v", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No matches for %q", pattern)
	}
	header := fmt.Sprintf("%d match(es) for %q:\n", len(matches), pattern)
	return header + strings.Join(matches, "\n")
}

func matchesAnyGlob(name string, globs []string) bool {
	for _, glob := range globs {
		if ok, _ := filepath.Match(glob, name); ok {
			return true
		}
	}
	return false
}
