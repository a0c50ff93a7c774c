package workspace

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestResolveRelative(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	abs, err := ws.Resolve("notes/todo.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Root(), "notes", "todo.md"), abs)
}

func TestResolveRejectsEscape(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"../outside.txt",
		"../../../etc/passwd",
		"a/../../escape",
		"/etc/passwd",
	} {
		_, err := ws.Resolve(p)
		require.ErrorIs(t, err, ErrEscape, "path %q", p)
	}
}

func TestResolveAbsoluteInsideRoot(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	abs, err := ws.Resolve(filepath.Join(ws.Root(), "report.csv"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Root(), "report.csv"), abs)
}

func TestIsRoot(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	require.True(t, ws.IsRoot("."))
	require.True(t, ws.IsRoot(ws.Root()))
	require.False(t, ws.IsRoot("sub"))
}

// Accepted paths always have the workspace root as a canonical prefix.
func TestResolvePrefixProperty(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	segment := gen.RegexMatch(`[a-z.]{1,8}`)
	properties := gopter.NewProperties(nil)
	properties.Property("accepted paths stay under root", prop.ForAll(
		func(parts []string) bool {
			p := filepath.Join(parts...)
			abs, err := ws.Resolve(p)
			if err != nil {
				return true // rejection is always safe
			}
			return abs == ws.Root() ||
				strings.HasPrefix(abs, ws.Root()+string(filepath.Separator))
		},
		gen.SliceOfN(3, segment),
	))
	properties.TestingRun(t)
}
