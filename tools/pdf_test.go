package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

type fakeRenderer struct {
	data []byte
	err  error
}

func (f *fakeRenderer) RenderPDF(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

func newPDFTool(t *testing.T, renderer HTMLRenderer) (*PDFTool, string) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	return NewPDFTool(ws, renderer), ws.Root()
}

func TestParsePageRange(t *testing.T) {
	cases := []struct {
		name  string
		spec  string
		total int
		want  []int
	}{
		{"all", "", 3, []int{1, 2, 3}},
		{"range", "1-3", 5, []int{1, 2, 3}},
		{"list", "1,3,7", 10, []int{1, 3, 7}},
		{"mixed", "1-2,5", 5, []int{1, 2, 5}},
		{"clamped", "1-100", 2, []int{1, 2}},
		{"dedupe", "1,1,1-2", 5, []int{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePageRange(tc.spec, tc.total)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParsePageRangeErrors(t *testing.T) {
	_, err := parsePageRange("abc", 5)
	require.Error(t, err)
	_, err = parsePageRange("5-2", 5)
	require.Error(t, err)
	_, err = parsePageRange("90-95", 5)
	require.Error(t, err)
}

func TestPDFCreateWithoutRenderer(t *testing.T) {
	pt, _ := newPDFTool(t, nil)
	out := run(t, pt, map[string]any{"action": "create", "path": "out.pdf", "html": "<h1>hi</h1>"})
	require.Contains(t, out, "requires a running browser")
}

func TestPDFCreateWritesFile(t *testing.T) {
	pt, root := newPDFTool(t, &fakeRenderer{data: []byte("%PDF-1.4 fake")})
	out := run(t, pt, map[string]any{"action": "create", "path": "docs/out.pdf", "html": "<h1>hi</h1>"})
	require.Equal(t, "Created docs/out.pdf (13 bytes)", out)
	data, err := os.ReadFile(filepath.Join(root, "docs", "out.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(data))
}

func TestPDFCreateRendererError(t *testing.T) {
	pt, _ := newPDFTool(t, &fakeRenderer{err: errors.New("browser gone")})
	out := run(t, pt, map[string]any{"action": "create", "path": "out.pdf", "html": "<p>x</p>"})
	require.Contains(t, out, "Error rendering PDF")
}

func TestPDFEscapeDenied(t *testing.T) {
	pt, _ := newPDFTool(t, nil)
	out := run(t, pt, map[string]any{"action": "read", "path": "../secret.pdf"})
	require.Contains(t, out, "Permission denied")
}

func TestPDFReadMissingFile(t *testing.T) {
	pt, _ := newPDFTool(t, nil)
	out := run(t, pt, map[string]any{"action": "read", "path": "missing.pdf"})
	require.Contains(t, out, "Error opening missing.pdf")
}
