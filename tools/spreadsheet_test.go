package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

func newSpreadsheetTool(t *testing.T) *SpreadsheetTool {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	return NewSpreadsheetTool(ws)
}

func TestSpreadsheetCSVRoundTrip(t *testing.T) {
	st := newSpreadsheetTool(t)
	out := run(t, st, map[string]any{
		"action":  "create",
		"path":    "sales.csv",
		"headers": []any{"region", "revenue"},
		"rows":    []any{[]any{"north", "100"}, []any{"south", "80"}},
	})
	require.Equal(t, "Created sales.csv with 3 row(s)", out)

	out = run(t, st, map[string]any{"action": "write", "path": "sales.csv",
		"rows": []any{[]any{"east", "50"}}})
	require.Equal(t, "Appended 1 row(s) to sales.csv", out)

	out = run(t, st, map[string]any{"action": "read", "path": "sales.csv"})
	require.Contains(t, out, "region | revenue")
	require.Contains(t, out, "east | 50")

	out = run(t, st, map[string]any{"action": "info", "path": "sales.csv"})
	require.Contains(t, out, "CSV, 4 row(s) x 2 column(s)")
}

func TestSpreadsheetColumnFilter(t *testing.T) {
	st := newSpreadsheetTool(t)
	run(t, st, map[string]any{
		"action":  "create",
		"path":    "data.csv",
		"headers": []any{"name", "age", "city"},
		"rows":    []any{[]any{"ada", "36", "london"}},
	})
	out := run(t, st, map[string]any{"action": "read", "path": "data.csv",
		"columns": []any{"Name", "CITY"}})
	require.Contains(t, out, "name | city")
	require.Contains(t, out, "ada | london")
	require.NotContains(t, out, "36")
}

func TestSpreadsheetRowCap(t *testing.T) {
	st := newSpreadsheetTool(t)
	rows := make([]any, 30)
	for i := range rows {
		rows[i] = []any{"row"}
	}
	run(t, st, map[string]any{"action": "create", "path": "caps.csv", "rows": rows})
	out := run(t, st, map[string]any{"action": "read", "path": "caps.csv", "max_rows": 10})
	require.Contains(t, out, "...[20 more rows]")
	require.Equal(t, 10, strings.Count(out, "row\n"))
}

func TestSpreadsheetXLSXRoundTrip(t *testing.T) {
	st := newSpreadsheetTool(t)
	out := run(t, st, map[string]any{
		"action":  "create",
		"path":    "book.xlsx",
		"headers": []any{"item", "qty"},
		"rows":    []any{[]any{"apples", "3"}},
	})
	require.Equal(t, "Created book.xlsx with 2 row(s)", out)

	out = run(t, st, map[string]any{"action": "write", "path": "book.xlsx",
		"rows": []any{[]any{"pears", "7"}}})
	require.Contains(t, out, "Appended 1 row(s)")

	out = run(t, st, map[string]any{"action": "read", "path": "book.xlsx"})
	require.Contains(t, out, "item | qty")
	require.Contains(t, out, "pears | 7")

	out = run(t, st, map[string]any{"action": "info", "path": "book.xlsx"})
	require.Contains(t, out, "XLSX")
	require.Contains(t, out, "3 row(s) x 2 column(s)")
}

func TestSpreadsheetUnknownColumns(t *testing.T) {
	st := newSpreadsheetTool(t)
	run(t, st, map[string]any{"action": "create", "path": "x.csv", "headers": []any{"a"}})
	out := run(t, st, map[string]any{"action": "read", "path": "x.csv", "columns": []any{"zzz"}})
	require.Contains(t, out, "None of the requested columns")
}

func TestSpreadsheetEscapeDenied(t *testing.T) {
	st := newSpreadsheetTool(t)
	out := run(t, st, map[string]any{"action": "read", "path": "../outside.csv"})
	require.Contains(t, out, "Permission denied")
}
