package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chauffeur-ai/chauffeur/browser"
	"github.com/chauffeur-ai/chauffeur/telemetry"
	"github.com/chauffeur-ai/chauffeur/workspace"
)

// CDPURLEnv overrides the connection target at connect time, pointing the
// tool at an externally managed browser.
const CDPURLEnv = "CDP_URL"

// BrowserTool is the stateful adapter between the agent loop and the CDP
// driver. It owns one connection, established lazily on the first action,
// and accounts for tab ownership: targets present at first connection belong
// to the user and are never closed; targets the agent opens are closed by
// Cleanup.
type BrowserTool struct {
	mu          sync.Mutex
	port        int
	cdpURL      string
	downloadDir string
	ws          *workspace.Workspace
	log         telemetry.Logger

	driver      *browser.Driver
	initialTabs map[string]bool
	openedTabs  []string
}

// BrowserToolOptions configures the adapter.
type BrowserToolOptions struct {
	// Port is the debugging port of the configured profile.
	Port int
	// CDPURL, when set, overrides the port with an explicit endpoint. The
	// CDP_URL environment variable overrides both.
	CDPURL string
	// DownloadDir is applied on connection when non-empty.
	DownloadDir string
	// Workspace receives screenshots and upload sources.
	Workspace *workspace.Workspace
	// Logger defaults to a no-op.
	Logger telemetry.Logger
}

// NewBrowserTool builds the adapter. No connection is made until the first
// action.
func NewBrowserTool(opts BrowserToolOptions) *BrowserTool {
	log := opts.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &BrowserTool{
		port:        opts.Port,
		cdpURL:      opts.CDPURL,
		downloadDir: opts.DownloadDir,
		ws:          opts.Workspace,
		log:         log,
	}
}

// Name implements Tool.
func (t *BrowserTool) Name() string { return "browser" }

// Description implements Tool.
func (t *BrowserTool) Description() string {
	return "Drive the browser: navigate, inspect interactive elements by index, click, type, " +
		"extract text, manage tabs, send keys, upload files and take screenshots. " +
		"Actions: open, reload, back, forward, tabs, switchtab, newtab, closetab, elements, " +
		"click, type, text, html, eval, click_xy, hover_xy, drag_xy, keys, upload, screenshot, info."
}

// Schema implements Tool.
func (t *BrowserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["open", "reload", "back", "forward", "tabs", "switchtab", "newtab",
					"closetab", "elements", "click", "type", "text", "html", "eval",
					"click_xy", "hover_xy", "drag_xy", "keys", "upload", "screenshot", "info"]
			},
			"url": {"type": "string", "description": "URL for open/newtab"},
			"index": {"type": "integer", "description": "Element index for click/type, tab index for switchtab/closetab"},
			"text": {"type": "string", "description": "Text for type"},
			"selector": {"type": "string", "description": "CSS selector scope for elements/text/html/upload"},
			"expression": {"type": "string", "description": "JavaScript for eval"},
			"x": {"type": "number"}, "y": {"type": "number"},
			"x2": {"type": "number"}, "y2": {"type": "number"},
			"steps": {"type": "integer", "description": "Interpolation steps for drag_xy"},
			"keys": {"type": "array", "items": {"type": "string"}, "description": "Key action stream for keys"},
			"path": {"type": "string", "description": "Workspace file path for upload"}
		},
		"required": ["action"]
	}`)
}

// Execute implements Tool. Every driver failure is returned as a result
// string prefixed "Browser error: " so the model can react.
func (t *BrowserTool) Execute(_ context.Context, args map[string]any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connect(); err != nil {
		return "Browser error: " + err.Error()
	}
	result, err := t.dispatch(args)
	if err != nil {
		return "Browser error: " + err.Error()
	}
	return result
}

func (t *BrowserTool) dispatch(args map[string]any) (string, error) {
	action := argString(args, "action")
	switch action {
	case "open":
		url := argString(args, "url")
		if err := t.driver.Open(url); err != nil {
			return "", err
		}
		return t.pageSummary("Opened " + url)
	case "reload":
		if err := t.driver.Reload(); err != nil {
			return "", err
		}
		return t.pageSummary("Reloaded")
	case "back":
		if err := t.driver.Back(); err != nil {
			return "", err
		}
		return t.pageSummary("Went back")
	case "forward":
		if err := t.driver.Forward(); err != nil {
			return "", err
		}
		return t.pageSummary("Went forward")
	case "tabs":
		return t.listTabs()
	case "switchtab":
		tab, err := t.driver.SwitchTab(argInt(args, "index", 0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Switched to tab %d: %s (%s)", tab.Index, tab.Title, tab.URL), nil
	case "newtab":
		return t.newTab(argString(args, "url"))
	case "closetab":
		return t.closeTab(argInt(args, "index", -1))
	case "elements":
		return t.elements(argString(args, "selector"))
	case "click":
		el, err := t.driver.Click(argInt(args, "index", 0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked [%d] %s %q", el.Index, el.Label, el.Desc), nil
	case "type":
		el, err := t.driver.Type(argInt(args, "index", 0), argString(args, "text"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Typed into [%d] %s %q", el.Index, el.Label, el.Desc), nil
	case "text":
		return t.driver.Text(argString(args, "selector"))
	case "html":
		return t.driver.HTML(argString(args, "selector"))
	case "eval":
		return t.driver.Eval(argString(args, "expression"))
	case "click_xy":
		x, _ := argFloat(args, "x")
		y, _ := argFloat(args, "y")
		if err := t.driver.ClickXY(x, y); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked at (%.0f, %.0f)", x, y), nil
	case "hover_xy":
		x, _ := argFloat(args, "x")
		y, _ := argFloat(args, "y")
		if err := t.driver.HoverXY(x, y); err != nil {
			return "", err
		}
		return fmt.Sprintf("Hovering at (%.0f, %.0f)", x, y), nil
	case "drag_xy":
		x, _ := argFloat(args, "x")
		y, _ := argFloat(args, "y")
		x2, _ := argFloat(args, "x2")
		y2, _ := argFloat(args, "y2")
		if err := t.driver.DragXY(x, y, x2, y2, argInt(args, "steps", 0)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Dragged from (%.0f, %.0f) to (%.0f, %.0f)", x, y, x2, y2), nil
	case "keys":
		if err := t.driver.SendKeys(argStringSlice(args, "keys")); err != nil {
			return "", err
		}
		return "Keys sent", nil
	case "upload":
		return t.upload(argString(args, "selector"), argString(args, "path"))
	case "screenshot":
		return t.screenshot()
	case "info":
		return t.pageSummary("Current page")
	default:
		return fmt.Sprintf("Unknown browser action: %s", action), nil
	}
}

// connect establishes the driver on first use and snapshots the pre-existing
// tabs as user-owned.
func (t *BrowserTool) connect() error {
	if t.driver != nil {
		return nil
	}
	endpoint := os.Getenv(CDPURLEnv)
	if endpoint == "" {
		endpoint = t.cdpURL
	}
	var (
		driver *browser.Driver
		err    error
	)
	if endpoint != "" {
		driver, err = browser.ConnectURL(endpoint, t.port, t.log)
	} else {
		driver, err = browser.Connect(t.port, t.log)
	}
	if err != nil {
		return err
	}
	t.driver = driver
	t.initialTabs = make(map[string]bool)
	if tabs, err := driver.Tabs(); err == nil {
		for _, tab := range tabs {
			t.initialTabs[tab.TargetID] = true
		}
	}
	if t.downloadDir != "" {
		if err := driver.SetDownloadDir(t.downloadDir); err != nil {
			t.log.Warn(context.Background(), "download dir not applied", "error", err.Error())
		}
	}
	return nil
}

func (t *BrowserTool) pageSummary(prefix string) (string, error) {
	url, title, err := t.driver.PageInfo()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s. Now at %s (%s)", prefix, url, title), nil
}

func (t *BrowserTool) listTabs() (string, error) {
	tabs, err := t.driver.Tabs()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, tab := range tabs {
		marker := " "
		if tab.TargetID == t.driver.TargetID() {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s [%d] %s (%s)\n", marker, tab.Index, tab.Title, tab.URL)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// newTab diffs the target set around the creation so side-effect popups are
// accounted as agent-owned too.
func (t *BrowserTool) newTab(url string) (string, error) {
	before := make(map[string]bool)
	if tabs, err := t.driver.Tabs(); err == nil {
		for _, tab := range tabs {
			before[tab.TargetID] = true
		}
	}
	tab, err := t.driver.NewTab(url)
	if err != nil {
		return "", err
	}
	if after, err := t.driver.Tabs(); err == nil {
		for _, cur := range after {
			if !before[cur.TargetID] && !t.initialTabs[cur.TargetID] {
				t.openedTabs = append(t.openedTabs, cur.TargetID)
			}
		}
	} else {
		t.openedTabs = append(t.openedTabs, tab.TargetID)
	}
	return fmt.Sprintf("Opened tab %d: %s", tab.Index, tab.URL), nil
}

func (t *BrowserTool) closeTab(index int) (string, error) {
	tabs, err := t.driver.Tabs()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(tabs) {
		return "", fmt.Errorf("tab index %d out of range (valid: 0-%d)", index, len(tabs)-1)
	}
	if err := t.driver.CloseTab(tabs[index].TargetID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Closed tab %d", index), nil
}

func (t *BrowserTool) elements(selector string) (string, error) {
	elements, err := t.driver.Elements(selector)
	if err != nil {
		return "", err
	}
	if len(elements) == 0 {
		return "No interactive elements found", nil
	}
	var sb strings.Builder
	for _, el := range elements {
		if el.Modal {
			fmt.Fprintf(&sb, "[%d] (modal) %s %q\n", el.Index, el.Label, el.Desc)
			continue
		}
		fmt.Fprintf(&sb, "[%d] %s %q\n", el.Index, el.Label, el.Desc)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (t *BrowserTool) upload(selector, path string) (string, error) {
	if selector == "" {
		selector = `input[type="file"]`
	}
	abs, err := t.ws.Resolve(path)
	if err != nil {
		return fmt.Sprintf("Permission denied: %s is outside the workspace", path), nil
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("upload source %s: %w", path, err)
	}
	if err := t.driver.Upload(selector, abs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Uploaded %s", path), nil
}

func (t *BrowserTool) screenshot() (string, error) {
	data, err := t.driver.Screenshot()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("screenshot_%d.png", time.Now().Unix())
	abs, err := t.ws.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return fmt.Sprintf("Saved screenshot to %s (%d bytes)", name, len(data)), nil
}

// RenderPDF implements HTMLRenderer by printing the document in a throwaway
// tab.
func (t *BrowserTool) RenderPDF(_ context.Context, html string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connect(); err != nil {
		return nil, err
	}
	prev := t.driver.TargetID()
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))
	tab, err := t.driver.NewTab(dataURL)
	if err != nil {
		return nil, err
	}
	data, renderErr := t.driver.PrintToPDF()
	if err := t.driver.CloseTab(tab.TargetID); err == nil {
		t.restoreTarget(prev)
	}
	return data, renderErr
}

func (t *BrowserTool) restoreTarget(targetID string) {
	tabs, err := t.driver.Tabs()
	if err != nil {
		return
	}
	for _, tab := range tabs {
		if tab.TargetID == targetID {
			_, _ = t.driver.SwitchTab(tab.Index)
			return
		}
	}
}

// Cleanup closes every page target the agent opened: all live targets not
// in the first-connection snapshot, falling back to the explicit opened
// list when no snapshot was taken. User tabs stay open. The connection is
// then released.
func (t *BrowserTool) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.driver == nil {
		return
	}
	if tabs, err := t.driver.Tabs(); err == nil && len(t.initialTabs) > 0 {
		for _, tab := range tabs {
			if !t.initialTabs[tab.TargetID] {
				_ = t.driver.CloseTab(tab.TargetID)
			}
		}
	} else {
		for _, targetID := range t.openedTabs {
			_ = t.driver.CloseTab(targetID)
		}
	}
	_ = t.driver.Close()
	t.driver = nil
	t.initialTabs = nil
	t.openedTabs = nil
}
