package tools

import "fmt"

// Argument extraction helpers. Tool arguments arrive as generic JSON maps;
// these read individual fields with defaults instead of failing on absent
// keys, since schema validation has already run.

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argStringDefault(args map[string]any, key, fallback string) string {
	if v := argString(args, key); v != "" {
		return v
	}
	return fallback
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func argFloat(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// argRows reads a two-dimensional array argument, stringifying each cell.
func argRows(args map[string]any, key string) [][]string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(raw))
	for _, rowAny := range raw {
		cells, ok := rowAny.([]any)
		if !ok {
			continue
		}
		row := make([]string, 0, len(cells))
		for _, cell := range cells {
			row = append(row, fmt.Sprint(cell))
		}
		out = append(out, row)
	}
	return out
}
