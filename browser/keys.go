package browser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CDP keyboard modifier bitmask.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

// keySpec describes one physical key for Input.dispatchKeyEvent.
type keySpec struct {
	Key  string
	Code string
	VK   int
	Text string
}

// namedKeys maps the --flag names accepted by the keys stream to key specs.
var namedKeys = map[string]keySpec{
	"enter":     {Key: "Enter", Code: "Enter", VK: 13, Text: "\r"},
	"tab":       {Key: "Tab", Code: "Tab", VK: 9},
	"escape":    {Key: "Escape", Code: "Escape", VK: 27},
	"backspace": {Key: "Backspace", Code: "Backspace", VK: 8},
	"delete":    {Key: "Delete", Code: "Delete", VK: 46},
	"up":        {Key: "ArrowUp", Code: "ArrowUp", VK: 38},
	"down":      {Key: "ArrowDown", Code: "ArrowDown", VK: 40},
	"left":      {Key: "ArrowLeft", Code: "ArrowLeft", VK: 37},
	"right":     {Key: "ArrowRight", Code: "ArrowRight", VK: 39},
	"home":      {Key: "Home", Code: "Home", VK: 36},
	"end":       {Key: "End", Code: "End", VK: 35},
	"space":     {Key: " ", Code: "Space", VK: 32, Text: " "},
}

// SendKeys executes a keyboard action stream against the focused element.
// Each action is plain text (inserted via Input.insertText with a
// per-character fallback), a named key flag such as --enter or --tab, a
// combo (--combo ctrl+a), or a delay in milliseconds (--delay 500). Used to
// drive canvas apps that have no DOM target to click or type into.
func (d *Driver) SendKeys(actions []string) error {
	for i := 0; i < len(actions); i++ {
		action := actions[i]
		switch {
		case action == "--combo":
			i++
			if i >= len(actions) {
				return cdpErrorf("", "--combo requires a key combination argument")
			}
			if err := d.combo(actions[i]); err != nil {
				return err
			}
		case action == "--delay":
			i++
			if i >= len(actions) {
				return cdpErrorf("", "--delay requires a millisecond argument")
			}
			ms, err := strconv.Atoi(actions[i])
			if err != nil || ms < 0 {
				return cdpErrorf("", "invalid delay %q", actions[i])
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case strings.HasPrefix(action, "--"):
			spec, ok := namedKeys[strings.TrimPrefix(action, "--")]
			if !ok {
				return cdpErrorf("", "unknown key flag %q", action)
			}
			if err := d.keyPress(spec, 0); err != nil {
				return err
			}
		default:
			if err := d.insertText(action); err != nil {
				return err
			}
		}
	}
	return nil
}

// combo parses a modifier+key combination like "ctrl+a" or "cmd+shift+p" and
// dispatches a single modified key press.
func (d *Driver) combo(combo string) error {
	parts := strings.Split(strings.ToLower(combo), "+")
	if len(parts) < 2 {
		return cdpErrorf("", "combo %q needs at least one modifier and a key", combo)
	}
	var modifiers int
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "alt", "opt", "option":
			modifiers |= modAlt
		case "ctrl", "control":
			modifiers |= modCtrl
		case "cmd", "meta", "command", "win":
			modifiers |= modMeta
		case "shift":
			modifiers |= modShift
		default:
			return cdpErrorf("", "unknown modifier %q in combo %q", mod, combo)
		}
	}
	spec, err := comboKey(parts[len(parts)-1])
	if err != nil {
		return err
	}
	return d.keyPress(spec, modifiers)
}

func comboKey(name string) (keySpec, error) {
	if spec, ok := namedKeys[name]; ok {
		return spec, nil
	}
	runes := []rune(name)
	if len(runes) != 1 {
		return keySpec{}, cdpErrorf("", "unknown combo key %q", name)
	}
	r := runes[0]
	spec := keySpec{Key: name}
	switch {
	case unicode.IsLetter(r):
		spec.Code = "Key" + strings.ToUpper(name)
		spec.VK = int(unicode.ToUpper(r))
	case unicode.IsDigit(r):
		spec.Code = "Digit" + name
		spec.VK = int(r)
	}
	return spec, nil
}

// keyPress dispatches a keyDown/keyUp pair for spec with the given modifier
// mask.
func (d *Driver) keyPress(spec keySpec, modifiers int) error {
	for _, kind := range []string{"keyDown", "keyUp"} {
		params := map[string]any{
			"type": kind,
			"key":  spec.Key,
		}
		if spec.Code != "" {
			params["code"] = spec.Code
		}
		if spec.VK != 0 {
			params["windowsVirtualKeyCode"] = spec.VK
			params["nativeVirtualKeyCode"] = spec.VK
		}
		if modifiers != 0 {
			params["modifiers"] = modifiers
		}
		if kind == "keyDown" && spec.Text != "" && modifiers == 0 {
			params["text"] = spec.Text
		}
		if _, err := d.client.Call("Input.dispatchKeyEvent", params); err != nil {
			return fmt.Errorf("dispatch %s %s: %w", kind, spec.Key, err)
		}
	}
	return nil
}
