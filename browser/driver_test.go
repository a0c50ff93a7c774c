package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeBrowser serves the CDP discovery endpoints and a WebSocket debugger per
// page target. Runtime.evaluate answers are popped from a scripted queue;
// other methods return empty results unless an error or follow-up event is
// registered for them.
type fakeBrowser struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	tabs   []discoveryTarget
	evals  []any
	errors map[string]string
	events map[string]string
	calls  []string
}

func newFakeBrowser(t *testing.T, pages int) *fakeBrowser {
	f := &fakeBrowser{
		t:      t,
		errors: make(map[string]string),
		events: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"Browser":"fake/1.0"}`)
	})
	mux.HandleFunc("/json/list", f.serveList)
	mux.HandleFunc("/json/close/", f.serveClose)
	mux.HandleFunc("/devtools/page/", f.serveWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	for i := 0; i < pages; i++ {
		f.addTab(fmt.Sprintf("tab-%d", i), fmt.Sprintf("https://example.com/%d", i))
	}
	return f
}

func (f *fakeBrowser) addTab(id, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append(f.tabs, discoveryTarget{ID: id, Type: "page", Title: "Tab " + id, URL: url})
}

func (f *fakeBrowser) queueEval(values ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, values...)
}

func (f *fakeBrowser) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call == method {
			return true
		}
	}
	return false
}

func (f *fakeBrowser) port() int {
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(f.srv.URL, "http://"))
	require.NoError(f.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(f.t, err)
	return port
}

func (f *fakeBrowser) serveList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, 0, len(f.tabs))
	for _, tab := range f.tabs {
		out = append(out, map[string]string{
			"id":                   tab.ID,
			"type":                 tab.Type,
			"title":                tab.Title,
			"url":                  tab.URL,
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/page/" + tab.ID,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeBrowser) serveClose(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/json/close/")
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tabs[:0]
	for _, tab := range f.tabs {
		if tab.ID != id {
			kept = append(kept, tab)
		}
	}
	f.tabs = kept
	fmt.Fprint(w, "Target is closing")
}

func (f *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var req cdpRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		frame := map[string]any{"id": req.ID}
		f.mu.Lock()
		f.calls = append(f.calls, req.Method)
		switch {
		case f.errors[req.Method] != "":
			frame["error"] = map[string]any{"code": -32000, "message": f.errors[req.Method]}
		case req.Method == "Runtime.evaluate" && len(f.evals) > 0:
			value := f.evals[0]
			f.evals = f.evals[1:]
			frame["result"] = map[string]any{"result": map[string]any{"value": value}}
		case req.Method == "Target.createTarget":
			id := fmt.Sprintf("tab-%d", len(f.tabs))
			url, _ := req.Params["url"].(string)
			f.tabs = append(f.tabs, discoveryTarget{ID: id, Type: "page", Title: "Tab " + id, URL: url})
			frame["result"] = map[string]any{"targetId": id}
		default:
			frame["result"] = map[string]any{}
		}
		event := f.events[req.Method]
		f.mu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		if event != "" {
			if err := conn.WriteJSON(map[string]any{"method": event}); err != nil {
				return
			}
		}
	}
}

func (f *fakeBrowser) connect() *Driver {
	d, err := ConnectURL(f.srv.URL, f.port(), nil)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConnectAttachesFirstPage(t *testing.T) {
	f := newFakeBrowser(t, 2)
	d := f.connect()
	require.Equal(t, "tab-0", d.TargetID())
	require.True(t, f.called("Page.enable"))
	require.True(t, f.called("Runtime.enable"))
}

// recordLogger captures message strings for assertions.
type recordLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *recordLogger) Debug(_ context.Context, msg string, _ ...any) { l.record(msg) }
func (l *recordLogger) Info(_ context.Context, msg string, _ ...any)  { l.record(msg) }
func (l *recordLogger) Warn(_ context.Context, msg string, _ ...any)  { l.record(msg) }
func (l *recordLogger) Error(_ context.Context, msg string, _ ...any) { l.record(msg) }

func TestClipKeepsRuneWhole(t *testing.T) {
	// the cut point lands on the continuation byte of the first 'é'
	s := strings.Repeat("a", 100-len(TruncationMarker)-1) + strings.Repeat("é", 20)
	out := clip(s, 100)
	require.True(t, utf8.ValidString(out))
	require.True(t, strings.HasSuffix(out, TruncationMarker))
	require.LessOrEqual(t, len(out), 100)
}

func TestConnectLogsAttach(t *testing.T) {
	f := newFakeBrowser(t, 1)
	logs := &recordLogger{}
	d, err := ConnectURL(f.srv.URL, f.port(), logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.Contains(t, logs.msgs, "cdp attach")
}

func TestConnectNoBrowser(t *testing.T) {
	_, err := ConnectURL("http://127.0.0.1:1", 1, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotRunning))
	var nre *NotRunningError
	require.ErrorAs(t, err, &nre)
	require.Equal(t, 1, nre.Port)
}

func TestOpenWaitsForLoad(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.events["Page.navigate"] = "Page.loadEventFired"
	d := f.connect()
	require.NoError(t, d.Open("example.com"))
	require.True(t, f.called("Page.navigate"))
}

func TestCallErrorFrame(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.errors["Page.reload"] = "cannot reload"
	d := f.connect()
	err := d.Reload()
	require.Error(t, err)
	var cdpErr *CDPError
	require.ErrorAs(t, err, &cdpErr)
	require.Equal(t, "Page.reload", cdpErr.Method)
	require.Contains(t, cdpErr.Message, "cannot reload")
}

func TestElements(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(`[{"index":0,"label":"button","desc":"Submit","modal":false},` +
		`{"index":1,"label":"link","desc":"Home","modal":true}]`)
	d := f.connect()
	elements, err := d.Elements("")
	require.NoError(t, err)
	require.Len(t, elements, 2)
	require.Equal(t, "button", elements[0].Label)
	require.True(t, elements[1].Modal)
}

func TestClickDispatchesMouseEvents(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(
		true, // already indexed
		`{"label":"button","desc":"Submit","editable":false,"contentEditable":false}`,
		`{"x":100,"y":200}`,
	)
	d := f.connect()
	el, err := d.Click(0)
	require.NoError(t, err)
	require.Equal(t, "button", el.Label)
	require.Equal(t, "Submit", el.Desc)
	require.True(t, f.called("Input.dispatchMouseEvent"))
}

func TestClickStaleElement(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(true, nil)
	d := f.connect()
	_, err := d.Click(5)
	require.Error(t, err)
	var cdpErr *CDPError
	require.ErrorAs(t, err, &cdpErr)
	require.Contains(t, cdpErr.Message, "Element [5] not found")
}

func TestTypeRejectsNonEditable(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(
		true,
		`{"label":"button","desc":"Go","editable":false,"contentEditable":false}`,
	)
	d := f.connect()
	_, err := d.Type(0, "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a text input")
}

func TestTypeIntoInput(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(
		true,
		`{"label":"input","desc":"Search","editable":true,"contentEditable":false}`,
		`{"x":50,"y":60}`, // scroll to center
		true,              // clear
		true,              // native setter
	)
	d := f.connect()
	el, err := d.Type(0, "hello")
	require.NoError(t, err)
	require.Equal(t, "input", el.Label)
	require.True(t, f.called("Input.insertText"))
}

func TestTextTruncation(t *testing.T) {
	f := newFakeBrowser(t, 1)
	f.queueEval(strings.Repeat("a", textCap+500))
	d := f.connect()
	text, err := d.Text("")
	require.NoError(t, err)
	require.Len(t, text, textCap)
	require.True(t, strings.HasSuffix(text, TruncationMarker))
}

func TestEvalException(t *testing.T) {
	f := newFakeBrowser(t, 1)
	d := f.connect()
	// An empty eval queue returns an empty result frame; inject an exception
	// through the error mechanism instead.
	f.errors["Runtime.evaluate"] = "Uncaught ReferenceError: nope is not defined"
	_, err := d.Eval("nope()")
	require.Error(t, err)
	var cdpErr *CDPError
	require.ErrorAs(t, err, &cdpErr)
}

func TestTabsAndSwitch(t *testing.T) {
	f := newFakeBrowser(t, 3)
	d := f.connect()
	tabs, err := d.Tabs()
	require.NoError(t, err)
	require.Len(t, tabs, 3)
	require.Equal(t, 1, tabs[1].Index)

	tab, err := d.SwitchTab(2)
	require.NoError(t, err)
	require.Equal(t, "tab-2", tab.TargetID)
	require.Equal(t, "tab-2", d.TargetID())
}

func TestSwitchTabOutOfRange(t *testing.T) {
	f := newFakeBrowser(t, 2)
	d := f.connect()
	_, err := d.SwitchTab(5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range (valid: 0-1)")
}

func TestNewTabAttaches(t *testing.T) {
	f := newFakeBrowser(t, 1)
	d := f.connect()
	tab, err := d.NewTab("news.ycombinator.com")
	require.NoError(t, err)
	require.Equal(t, "tab-1", tab.TargetID)
	require.Equal(t, "tab-1", d.TargetID())
	require.Equal(t, "https://news.ycombinator.com", tab.URL)
}

func TestCloseCurrentTabReattaches(t *testing.T) {
	f := newFakeBrowser(t, 2)
	d := f.connect()
	require.Equal(t, "tab-0", d.TargetID())
	require.NoError(t, d.CloseTab("tab-0"))
	require.Equal(t, "tab-1", d.TargetID())
}

func TestCloseOtherTabKeepsAttachment(t *testing.T) {
	f := newFakeBrowser(t, 2)
	d := f.connect()
	require.NoError(t, d.CloseTab("tab-1"))
	require.Equal(t, "tab-0", d.TargetID())
	tabs, err := d.Tabs()
	require.NoError(t, err)
	require.Len(t, tabs, 1)
}

func TestNormalizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:9222", "http://127.0.0.1:9222"},
		{"http://127.0.0.1:9222/", "http://127.0.0.1:9222"},
		{"ws://127.0.0.1:9222", "http://127.0.0.1:9222"},
		{"wss://remote:443", "https://remote:443"},
		{"127.0.0.1:9222", "http://127.0.0.1:9222"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normalizeBase(tc.in), "input %q", tc.in)
	}
}
