package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fallbackCall is a tool invocation recovered from assistant text. Weaker
// models sometimes emit calls as prose instead of structured tool_calls.
type fallbackCall struct {
	Name string
	Args map[string]any
	// Cleaned is the assistant text with the encoded call removed.
	Cleaned string
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseFallbackCall recognizes two textual tool-call encodings:
// a fenced json block carrying {"name": ..., "arguments"|"parameters": ...},
// and toolname{...} / toolname(...) where toolname is a known tool.
func parseFallbackCall(text string, known []string) (fallbackCall, bool) {
	if call, ok := parseFencedCall(text, known); ok {
		return call, true
	}
	return parseInlineCall(text, known)
}

func parseFencedCall(text string, known []string) (fallbackCall, bool) {
	m := fencedJSON.FindStringSubmatchIndex(text)
	if m == nil {
		return fallbackCall{}, false
	}
	body := text[m[2]:m[3]]
	var envelope struct {
		Name       string         `json:"name"`
		Arguments  map[string]any `json:"arguments"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return fallbackCall{}, false
	}
	if !knownTool(envelope.Name, known) {
		return fallbackCall{}, false
	}
	args := envelope.Arguments
	if args == nil {
		args = envelope.Parameters
	}
	if args == nil {
		args = map[string]any{}
	}
	cleaned := strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return fallbackCall{Name: envelope.Name, Args: args, Cleaned: cleaned}, true
}

func parseInlineCall(text string, known []string) (fallbackCall, bool) {
	for _, name := range known {
		for idx := 0; ; {
			pos := strings.Index(text[idx:], name)
			if pos < 0 {
				break
			}
			start := idx + pos
			idx = start + len(name)
			// the name must stand alone, not be a substring of a word
			if start > 0 && isWordByte(text[start-1]) {
				continue
			}
			rest := text[idx:]
			var body string
			var end int
			switch {
			case strings.HasPrefix(rest, "{"):
				n := matchBraces(rest)
				if n < 0 {
					continue
				}
				body, end = rest[:n], idx+n
			case strings.HasPrefix(rest, "("):
				n := matchParens(rest)
				if n < 0 {
					continue
				}
				body, end = strings.TrimSpace(rest[1:n-1]), idx+n
				if body == "" {
					body = "{}"
				}
			default:
				continue
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(body), &args); err != nil {
				continue
			}
			cleaned := strings.TrimSpace(text[:start] + text[end:])
			return fallbackCall{Name: name, Args: args, Cleaned: cleaned}, true
		}
	}
	return fallbackCall{}, false
}

func knownTool(name string, known []string) bool {
	for _, k := range known {
		if k == name {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// matchBraces returns the length of the balanced {...} prefix, honoring JSON
// string literals, or -1 when unbalanced.
func matchBraces(s string) int { return matchNested(s, '{', '}') }

// matchParens returns the length of the balanced (...) prefix, or -1.
func matchParens(s string) int { return matchNested(s, '(', ')') }

func matchNested(s string, open, close byte) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
