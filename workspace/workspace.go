// Package workspace confines file operations to a single directory tree.
//
// Every tool that touches the filesystem resolves its paths through a
// Workspace. A path whose canonical absolute form does not live under the
// workspace root is rejected, which is the only sandboxing mechanism the
// agent relies on.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscape reports a path that resolves outside the workspace root.
var ErrEscape = errors.New("workspace: path escapes workspace")

// Workspace is an absolute directory that bounds all file, shell, PDF,
// spreadsheet and sub-agent output operations.
type Workspace struct {
	root string
}

// New returns a Workspace rooted at dir. The directory is created if it does
// not exist. Relative dirs are made absolute against the current directory.
func New(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, errors.New("workspace: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %q: %w", abs, err)
	}
	// Symlinked roots (e.g. /tmp on macOS) must canonicalize so the prefix
	// check below compares like with like.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Workspace{root: abs}, nil
}

// Root returns the canonical absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Resolve maps p into the workspace and returns its absolute form. Absolute
// paths are accepted only when already inside the root; relative paths are
// joined to the root. Returns ErrEscape when the canonical result is not
// under the root.
func (w *Workspace) Resolve(p string) (string, error) {
	if p == "" || p == "." {
		return w.root, nil
	}
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	canonical := candidate
	// The target may not exist yet (writes, mkdir); canonicalize the nearest
	// existing ancestor and re-append the remainder.
	if resolved, err := evalExisting(candidate); err == nil {
		canonical = resolved
	}
	if !w.contains(canonical) {
		return "", fmt.Errorf("%w: %s", ErrEscape, p)
	}
	return candidate, nil
}

// IsRoot reports whether p resolves to the workspace root itself. Used by the
// files tool to refuse deleting the root.
func (w *Workspace) IsRoot(p string) bool {
	abs, err := w.Resolve(p)
	if err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs == w.root
}

func (w *Workspace) contains(abs string) bool {
	if abs == w.root {
		return true
	}
	return strings.HasPrefix(abs, w.root+string(filepath.Separator))
}

// evalExisting canonicalizes the longest existing prefix of p and joins the
// non-existing remainder back on.
func evalExisting(p string) (string, error) {
	remainder := ""
	current := p
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
