package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chauffeur-ai/chauffeur/telemetry"
)

// Output caps for extraction operations. Clipped output always ends with a
// truncation marker.
const (
	textCap = 8192
	htmlCap = 10240

	// TruncationMarker terminates any clipped extraction result.
	TruncationMarker = "\n...[truncated]"
)

const (
	navigationTimeout = 15 * time.Second
	focusSettle       = 100 * time.Millisecond
)

type (
	// Driver owns the connection to one page target and provides all
	// high-level page operations. Operations either succeed or return
	// *CDPError / *NotRunningError; nothing is retried inside the driver.
	Driver struct {
		base     string
		port     int
		client   *Client
		targetID string
		log      telemetry.Logger
	}

	// Element is one indexed interactive node: a dense non-negative index
	// stamped onto the DOM, a short categorical label and a description of
	// up to 120 characters.
	Element struct {
		Index int    `json:"index"`
		Label string `json:"label"`
		Desc  string `json:"desc"`
		Modal bool   `json:"modal"`
	}
)

// Connect attaches to a Chromium instance on the given local debugging port
// and binds to its first page target.
func Connect(port int, log telemetry.Logger) (*Driver, error) {
	return ConnectURL(fmt.Sprintf("http://127.0.0.1:%d", port), port, log)
}

// ConnectURL attaches to the CDP endpoint at cdpURL (used for external
// browsers via the CDP_URL override).
func ConnectURL(cdpURL string, port int, log telemetry.Logger) (*Driver, error) {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	base := normalizeBase(cdpURL)
	if err := discover(base, port); err != nil {
		return nil, err
	}
	tabs, wsURLs, err := listTabs(base, port)
	if err != nil {
		return nil, err
	}
	if len(tabs) == 0 {
		return nil, cdpErrorf("", "no page targets available")
	}
	d := &Driver{base: base, port: port, log: log}
	if err := d.attach(tabs[0].TargetID, wsURLs[0]); err != nil {
		return nil, err
	}
	return d, nil
}

// Close tears down the page connection. The browser itself keeps running.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// TargetID returns the id of the page target the driver is attached to.
func (d *Driver) TargetID() string { return d.targetID }

func (d *Driver) attach(targetID, wsURL string) error {
	client, err := Dial(wsURL)
	if err != nil {
		return &NotRunningError{Port: d.port, Cause: err}
	}
	if d.client != nil {
		_ = d.client.Close()
	}
	d.client = client
	d.targetID = targetID
	for _, domain := range []string{"Page.enable", "Runtime.enable", "DOM.enable"} {
		if _, err := client.Call(domain, nil); err != nil {
			return err
		}
	}
	d.log.Debug(context.Background(), "cdp attach", "target", targetID, "port", d.port)
	return nil
}

// Open navigates to url and waits for the load event (or the navigation
// timeout, whichever comes first).
func (d *Driver) Open(url string) error {
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	res, err := d.client.CallAndWait("Page.navigate", map[string]any{"url": url}, "Page.loadEventFired", navigationTimeout)
	if err != nil {
		return err
	}
	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if res != nil {
		_ = json.Unmarshal(res, &nav)
	}
	if nav.ErrorText != "" {
		return cdpErrorf("Page.navigate", "navigation to %s failed: %s", url, nav.ErrorText)
	}
	d.log.Debug(context.Background(), "navigate", "url", url)
	return nil
}

// Reload reloads the current page and waits for the load event.
func (d *Driver) Reload() error {
	_, err := d.client.CallAndWait("Page.reload", nil, "Page.loadEventFired", navigationTimeout)
	return err
}

// Back navigates one entry backwards in the tab history.
func (d *Driver) Back() error { return d.historyStep(-1) }

// Forward navigates one entry forwards in the tab history.
func (d *Driver) Forward() error { return d.historyStep(1) }

func (d *Driver) historyStep(delta int) error {
	res, err := d.client.Call("Page.getNavigationHistory", nil)
	if err != nil {
		return err
	}
	var history struct {
		CurrentIndex int `json:"currentIndex"`
		Entries      []struct {
			ID int `json:"id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(res, &history); err != nil {
		return fmt.Errorf("parse navigation history: %w", err)
	}
	target := history.CurrentIndex + delta
	if target < 0 || target >= len(history.Entries) {
		return cdpErrorf("Page.navigateToHistoryEntry", "no history entry in that direction")
	}
	_, err = d.client.CallAndWait("Page.navigateToHistoryEntry",
		map[string]any{"entryId": history.Entries[target].ID},
		"Page.loadEventFired", navigationTimeout)
	return err
}

// Tabs lists the open page targets in discovery order.
func (d *Driver) Tabs() ([]Tab, error) {
	tabs, _, err := listTabs(d.base, d.port)
	return tabs, err
}

// SwitchTab attaches the driver to the page target at index i and brings it
// to the front. An out-of-range index returns a *CDPError quoting the valid
// range.
func (d *Driver) SwitchTab(i int) (Tab, error) {
	tabs, wsURLs, err := listTabs(d.base, d.port)
	if err != nil {
		return Tab{}, err
	}
	if i < 0 || i >= len(tabs) {
		return Tab{}, cdpErrorf("", "tab index %d out of range (valid: 0-%d)", i, len(tabs)-1)
	}
	if err := d.attach(tabs[i].TargetID, wsURLs[i]); err != nil {
		return Tab{}, err
	}
	if _, err := d.client.Call("Page.bringToFront", nil); err != nil {
		return Tab{}, err
	}
	return tabs[i], nil
}

// NewTab creates a new page target at url, attaches the driver to it and
// returns the new tab.
func (d *Driver) NewTab(url string) (Tab, error) {
	if url == "" {
		url = "about:blank"
	} else if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	res, err := d.client.Call("Target.createTarget", map[string]any{"url": url})
	if err != nil {
		return Tab{}, err
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(res, &created); err != nil {
		return Tab{}, fmt.Errorf("parse createTarget: %w", err)
	}
	tabs, wsURLs, err := listTabs(d.base, d.port)
	if err != nil {
		return Tab{}, err
	}
	for i, tab := range tabs {
		if tab.TargetID == created.TargetID {
			if err := d.attach(tab.TargetID, wsURLs[i]); err != nil {
				return Tab{}, err
			}
			return tab, nil
		}
	}
	return Tab{}, cdpErrorf("Target.createTarget", "created target %s not found in target list", created.TargetID)
}

// CloseTab closes the page target with the given id. When the driver was
// attached to it, the driver re-attaches to the first remaining page.
func (d *Driver) CloseTab(targetID string) error {
	if err := closeTarget(d.base, targetID); err != nil {
		return err
	}
	if targetID != d.targetID {
		return nil
	}
	tabs, wsURLs, err := listTabs(d.base, d.port)
	if err != nil {
		return err
	}
	if len(tabs) == 0 {
		d.targetID = ""
		return nil
	}
	return d.attach(tabs[0].TargetID, wsURLs[0])
}

// PageInfo returns the current page URL and title.
func (d *Driver) PageInfo() (url, title string, err error) {
	raw, err := d.evalString(pageInfoExpr())
	if err != nil {
		return "", "", err
	}
	var info struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return "", "", fmt.Errorf("parse page info: %w", err)
	}
	return info.URL, info.Title, nil
}

// Elements indexes the interactive elements of the page (optionally under
// scopeSelector), stamping each with StampAttr. Re-indexing is idempotent:
// stamps are cleared and reassigned on every call.
func (d *Driver) Elements(scopeSelector string) ([]Element, error) {
	raw, err := d.evalString(indexExpr(scopeSelector))
	if err != nil {
		return nil, err
	}
	var elements []Element
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("parse element index: %w", err)
	}
	return elements, nil
}

// EnsureIndexed stamps the whole page when no stamps from this navigation
// exist, so click(0) right after open(url) works without an explicit
// elements() call.
func (d *Driver) EnsureIndexed() error {
	indexed, err := d.evalBool(probeIndexedExpr())
	if err != nil {
		return err
	}
	if indexed {
		return nil
	}
	_, err = d.Elements("")
	return err
}

// Click resolves stamped node i, scrolls it to the viewport center and
// dispatches a real mouse press/release pair at its centroid. Real mouse
// events are required to trigger framework event handlers. Returns the
// element's label and description.
func (d *Driver) Click(i int) (Element, error) {
	if err := d.EnsureIndexed(); err != nil {
		return Element{}, err
	}
	info, err := d.elementInfo(i)
	if err != nil {
		return Element{}, err
	}
	x, y, err := d.scrollToCenter(i)
	if err != nil {
		return Element{}, err
	}
	if err := d.clickAt(x, y); err != nil {
		return Element{}, err
	}
	return Element{Index: i, Label: info.Label, Desc: info.Desc}, nil
}

// Type enters text into stamped node i. Only input, textarea,
// contenteditable and role=textbox nodes are accepted. The node is focused
// with a real click, cleared, and the text inserted via Input.insertText
// (falling back to per-character key events); non-contenteditable values are
// finally written through the native setter with input/change events.
func (d *Driver) Type(i int, text string) (Element, error) {
	if err := d.EnsureIndexed(); err != nil {
		return Element{}, err
	}
	info, err := d.elementInfo(i)
	if err != nil {
		return Element{}, err
	}
	if !info.Editable {
		return Element{}, cdpErrorf("", "element [%d] (%s) is not a text input", i, info.Label)
	}
	x, y, err := d.scrollToCenter(i)
	if err != nil {
		return Element{}, err
	}
	if err := d.clickAt(x, y); err != nil {
		return Element{}, err
	}
	time.Sleep(focusSettle)

	if _, err := d.evalBool(clearEditableExpr(i)); err != nil {
		return Element{}, err
	}
	if info.ContentEditable {
		// The select-all left the prior content highlighted; one Backspace
		// removes it.
		if err := d.keyPress(namedKeys["backspace"], 0); err != nil {
			return Element{}, err
		}
	}
	if err := d.insertText(text); err != nil {
		return Element{}, err
	}
	if !info.ContentEditable {
		if _, err := d.evalBool(setValueNativeExpr(i, text)); err != nil {
			return Element{}, err
		}
	}
	return Element{Index: i, Label: info.Label, Desc: info.Desc}, nil
}

// Text extracts the visible text of the page (or of the first node matching
// selector), whitespace-collapsed and capped at 8 KB.
func (d *Driver) Text(selector string) (string, error) {
	raw, err := d.evalString(textExpr(selector))
	if err != nil {
		return "", err
	}
	return clip(raw, textCap), nil
}

// HTML returns the outerHTML of the first element matching selector, capped
// at 10 KB.
func (d *Driver) HTML(selector string) (string, error) {
	res, err := d.eval(htmlExpr(selector))
	if err != nil {
		return "", err
	}
	var value *string
	if err := json.Unmarshal(res, &value); err != nil || value == nil {
		return "", cdpErrorf("", "no element matches selector %q", selector)
	}
	return clip(*value, htmlCap), nil
}

// Eval evaluates a JavaScript expression with returnByValue and awaitPromise
// and returns the JSON-encoded result value.
func (d *Driver) Eval(expr string) (string, error) {
	res, err := d.eval(expr)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

// ClickXY dispatches a raw mouse click at page coordinates. Coordinate
// operations are the only way to reach cross-origin iframes.
func (d *Driver) ClickXY(x, y float64) error { return d.clickAt(x, y) }

// HoverXY moves the mouse to page coordinates without clicking.
func (d *Driver) HoverXY(x, y float64) error {
	return d.mouseEvent("mouseMoved", x, y, "none", 0)
}

// DragXY presses at (x1,y1), interpolates steps intermediate moves, and
// releases at (x2,y2).
func (d *Driver) DragXY(x1, y1, x2, y2 float64, steps int) error {
	if steps <= 0 {
		steps = 10
	}
	if err := d.mouseEvent("mousePressed", x1, y1, "left", 1); err != nil {
		return err
	}
	for step := 1; step <= steps; step++ {
		t := float64(step) / float64(steps+1)
		if err := d.mouseEvent("mouseMoved", x1+(x2-x1)*t, y1+(y2-y1)*t, "left", 0); err != nil {
			return err
		}
	}
	if err := d.mouseEvent("mouseMoved", x2, y2, "left", 0); err != nil {
		return err
	}
	return d.mouseEvent("mouseReleased", x2, y2, "left", 1)
}

// Upload sets the files of the file input matching selector. No OS file
// dialog is involved.
func (d *Driver) Upload(selector, absPath string) error {
	res, err := d.client.Call("DOM.getDocument", nil)
	if err != nil {
		return err
	}
	var doc struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(res, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	res, err = d.client.Call("DOM.querySelector", map[string]any{
		"nodeId":   doc.Root.NodeID,
		"selector": selector,
	})
	if err != nil {
		return err
	}
	var node struct {
		NodeID int `json:"nodeId"`
	}
	if err := json.Unmarshal(res, &node); err != nil {
		return fmt.Errorf("parse querySelector: %w", err)
	}
	if node.NodeID == 0 {
		return cdpErrorf("DOM.querySelector", "no file input matches selector %q", selector)
	}
	_, err = d.client.Call("DOM.setFileInputFiles", map[string]any{
		"files":  []string{absPath},
		"nodeId": node.NodeID,
	})
	return err
}

// Screenshot captures the current viewport as PNG bytes.
func (d *Driver) Screenshot() ([]byte, error) {
	res, err := d.client.Call("Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, err
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(res, &shot); err != nil {
		return nil, fmt.Errorf("parse screenshot: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return data, nil
}

// PrintToPDF renders the current page to PDF bytes via Page.printToPDF.
func (d *Driver) PrintToPDF() ([]byte, error) {
	res, err := d.client.Call("Page.printToPDF", map[string]any{"printBackground": true})
	if err != nil {
		return nil, err
	}
	var pdf struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(res, &pdf); err != nil {
		return nil, fmt.Errorf("parse printToPDF: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(pdf.Data)
	if err != nil {
		return nil, fmt.Errorf("decode pdf: %w", err)
	}
	return data, nil
}

// SetDownloadDir applies Browser.setDownloadBehavior=allow with dir.
func (d *Driver) SetDownloadDir(dir string) error {
	_, err := d.client.Call("Browser.setDownloadBehavior", map[string]any{
		"behavior":     "allow",
		"downloadPath": dir,
	})
	return err
}

type elementInfo struct {
	Label           string `json:"label"`
	Desc            string `json:"desc"`
	Editable        bool   `json:"editable"`
	ContentEditable bool   `json:"contentEditable"`
}

func (d *Driver) elementInfo(i int) (elementInfo, error) {
	res, err := d.eval(elementInfoExpr(i))
	if err != nil {
		return elementInfo{}, err
	}
	var raw *string
	if err := json.Unmarshal(res, &raw); err != nil || raw == nil {
		return elementInfo{}, staleElement(i)
	}
	var info elementInfo
	if err := json.Unmarshal([]byte(*raw), &info); err != nil {
		return elementInfo{}, fmt.Errorf("parse element info: %w", err)
	}
	return info, nil
}

func (d *Driver) scrollToCenter(i int) (x, y float64, err error) {
	res, err := d.eval(scrollCenterExpr(i))
	if err != nil {
		return 0, 0, err
	}
	var raw *string
	if err := json.Unmarshal(res, &raw); err != nil || raw == nil {
		return 0, 0, staleElement(i)
	}
	var point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal([]byte(*raw), &point); err != nil {
		return 0, 0, fmt.Errorf("parse element center: %w", err)
	}
	return point.X, point.Y, nil
}

func staleElement(i int) *CDPError {
	return cdpErrorf("", "Element [%d] not found - the page may have changed, run elements again", i)
}

func (d *Driver) clickAt(x, y float64) error {
	if err := d.mouseEvent("mousePressed", x, y, "left", 1); err != nil {
		return err
	}
	return d.mouseEvent("mouseReleased", x, y, "left", 1)
}

func (d *Driver) mouseEvent(kind string, x, y float64, button string, clickCount int) error {
	params := map[string]any{
		"type":   kind,
		"x":      x,
		"y":      y,
		"button": button,
	}
	if clickCount > 0 {
		params["clickCount"] = clickCount
	}
	_, err := d.client.Call("Input.dispatchMouseEvent", params)
	return err
}

func (d *Driver) insertText(text string) error {
	if _, err := d.client.Call("Input.insertText", map[string]any{"text": text}); err == nil {
		return nil
	}
	// Fallback: per-character key event pairs.
	for _, r := range text {
		ch := string(r)
		if err := d.keyPress(keySpec{Key: ch, Text: ch}, 0); err != nil {
			return err
		}
	}
	return nil
}

// eval runs Runtime.evaluate with returnByValue and awaitPromise. A thrown
// page exception becomes a *CDPError carrying the exception description.
func (d *Driver) eval(expr string) (json.RawMessage, error) {
	res, err := d.client.Call("Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, fmt.Errorf("parse evaluate result: %w", err)
	}
	if out.ExceptionDetails != nil {
		desc := out.ExceptionDetails.Text
		if out.ExceptionDetails.Exception != nil && out.ExceptionDetails.Exception.Description != "" {
			desc = out.ExceptionDetails.Exception.Description
		}
		return nil, cdpErrorf("Runtime.evaluate", "%s", desc)
	}
	return out.Result.Value, nil
}

func (d *Driver) evalString(expr string) (string, error) {
	res, err := d.eval(expr)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal(res, &value); err != nil {
		return "", fmt.Errorf("expected string result: %w", err)
	}
	return value, nil
}

func (d *Driver) evalBool(expr string) (bool, error) {
	res, err := d.eval(expr)
	if err != nil {
		return false, err
	}
	var value bool
	if err := json.Unmarshal(res, &value); err != nil {
		return false, fmt.Errorf("expected bool result: %w", err)
	}
	return value, nil
}

// clip caps s at max bytes, appending the truncation marker when clipped.
// The cut backs up to a rune boundary so the result stays valid UTF-8.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(TruncationMarker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}
