package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

const spreadsheetRowCap = 500

// SpreadsheetTool reads and writes CSV and XLSX files inside the workspace.
// The format follows the file extension.
type SpreadsheetTool struct {
	ws *workspace.Workspace
}

// NewSpreadsheetTool builds the spreadsheet tool.
func NewSpreadsheetTool(ws *workspace.Workspace) *SpreadsheetTool {
	return &SpreadsheetTool{ws: ws}
}

// Name implements Tool.
func (t *SpreadsheetTool) Name() string { return "spreadsheet" }

// Description implements Tool.
func (t *SpreadsheetTool) Description() string {
	return "Work with CSV and XLSX spreadsheets. Actions: read, write, create, info."
}

// Schema implements Tool.
func (t *SpreadsheetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["read", "write", "create", "info"]},
			"path": {"type": "string", "description": "Spreadsheet path relative to the workspace (.csv or .xlsx)"},
			"columns": {"type": "array", "items": {"type": "string"}, "description": "Header names to keep when reading"},
			"max_rows": {"type": "integer", "description": "Row cap when reading (default 500)"},
			"headers": {"type": "array", "items": {"type": "string"}, "description": "Header row for create"},
			"rows": {"type": "array", "items": {"type": "array"}, "description": "Data rows for write/create"}
		},
		"required": ["action", "path"]
	}`)
}

// Execute implements Tool.
func (t *SpreadsheetTool) Execute(_ context.Context, args map[string]any) string {
	path := argString(args, "path")
	abs, err := t.ws.Resolve(path)
	if err != nil {
		return fmt.Sprintf("Permission denied: %s is outside the workspace", path)
	}
	switch action := argString(args, "action"); action {
	case "read":
		return t.read(abs, path, argStringSlice(args, "columns"), argInt(args, "max_rows", spreadsheetRowCap))
	case "write":
		return t.write(abs, path, argRows(args, "rows"))
	case "create":
		return t.create(abs, path, argStringSlice(args, "headers"), argRows(args, "rows"))
	case "info":
		return t.info(abs, path)
	default:
		return fmt.Sprintf("Unknown spreadsheet action: %s", action)
	}
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func (t *SpreadsheetTool) loadRows(abs, path string) ([][]string, error) {
	if isCSV(abs) {
		f, err := os.Open(abs)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		return reader.ReadAll()
	}
	f, err := excelize.OpenFile(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	return f.GetRows(sheets[0])
}

func (t *SpreadsheetTool) read(abs, path string, columns []string, maxRows int) string {
	if maxRows <= 0 || maxRows > spreadsheetRowCap {
		maxRows = spreadsheetRowCap
	}
	rows, err := t.loadRows(abs, path)
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", path, err)
	}
	if len(rows) == 0 {
		return fmt.Sprintf("%s is empty", path)
	}

	// Column filter keys off the header row.
	keep := []int(nil)
	if len(columns) > 0 {
		wanted := make(map[string]bool, len(columns))
		for _, col := range columns {
			wanted[strings.ToLower(strings.TrimSpace(col))] = true
		}
		for i, header := range rows[0] {
			if wanted[strings.ToLower(strings.TrimSpace(header))] {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			return fmt.Sprintf("None of the requested columns exist in %s", path)
		}
	}

	total := len(rows)
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	var sb strings.Builder
	for _, row := range rows {
		if keep != nil {
			filtered := make([]string, 0, len(keep))
			for _, idx := range keep {
				if idx < len(row) {
					filtered = append(filtered, row[idx])
				} else {
					filtered = append(filtered, "")
				}
			}
			row = filtered
		}
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	if total > maxRows {
		fmt.Fprintf(&sb, "...[%d more rows]", total-maxRows)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (t *SpreadsheetTool) write(abs, path string, rows [][]string) string {
	if len(rows) == 0 {
		return "spreadsheet write requires rows"
	}
	if isCSV(abs) {
		f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Sprintf("Error writing %s: %v", path, err)
		}
		defer f.Close()
		writer := csv.NewWriter(f)
		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return fmt.Sprintf("Error writing %s: %v", path, err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Sprintf("Error writing %s: %v", path, err)
		}
		return fmt.Sprintf("Appended %d row(s) to %s", len(rows), path)
	}

	f, err := excelize.OpenFile(abs)
	if err != nil {
		return fmt.Sprintf("Error opening %s: %v", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Sprintf("%s has no sheets", path)
	}
	sheet := sheets[0]
	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", path, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, len(existing)+i+1)
		if err != nil {
			return fmt.Sprintf("Error writing %s: %v", path, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Sprintf("Error writing %s: %v", path, err)
		}
	}
	if err := f.Save(); err != nil {
		return fmt.Sprintf("Error saving %s: %v", path, err)
	}
	return fmt.Sprintf("Appended %d row(s) to %s", len(rows), path)
}

func (t *SpreadsheetTool) create(abs, path string, headers []string, rows [][]string) string {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Sprintf("Error creating %s: %v", path, err)
	}
	all := make([][]string, 0, len(rows)+1)
	if len(headers) > 0 {
		all = append(all, headers)
	}
	all = append(all, rows...)
	if len(all) == 0 {
		return "spreadsheet create requires headers or rows"
	}

	if isCSV(abs) {
		f, err := os.Create(abs)
		if err != nil {
			return fmt.Sprintf("Error creating %s: %v", path, err)
		}
		defer f.Close()
		writer := csv.NewWriter(f)
		if err := writer.WriteAll(all); err != nil {
			return fmt.Sprintf("Error creating %s: %v", path, err)
		}
		return fmt.Sprintf("Created %s with %d row(s)", path, len(all))
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetList()[0]
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Sprintf("Error creating %s: %v", path, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Sprintf("Error creating %s: %v", path, err)
		}
	}
	if err := f.SaveAs(abs); err != nil {
		return fmt.Sprintf("Error saving %s: %v", path, err)
	}
	return fmt.Sprintf("Created %s with %d row(s)", path, len(all))
}

func (t *SpreadsheetTool) info(abs, path string) string {
	if isCSV(abs) {
		rows, err := t.loadRows(abs, path)
		if err != nil {
			return fmt.Sprintf("Error on %s: %v", path, err)
		}
		cols := 0
		if len(rows) > 0 {
			cols = len(rows[0])
		}
		return fmt.Sprintf("%s: CSV, %d row(s) x %d column(s)", path, len(rows), cols)
	}
	f, err := excelize.OpenFile(abs)
	if err != nil {
		return fmt.Sprintf("Error on %s: %v", path, err)
	}
	defer f.Close()
	var parts []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%s (unreadable)", sheet))
			continue
		}
		cols := 0
		if len(rows) > 0 {
			cols = len(rows[0])
		}
		parts = append(parts, fmt.Sprintf("%s: %d row(s) x %d column(s)", sheet, len(rows), cols))
	}
	return fmt.Sprintf("%s: XLSX, sheets: %s", path, strings.Join(parts, "; "))
}
