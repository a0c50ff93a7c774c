package browser

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Default deadlines for transport operations.
const (
	defaultCallTimeout = 30 * time.Second
	discoveryTimeout   = 5 * time.Second
)

type (
	// Client is a synchronous CDP connection to a single page target.
	// Requests carry a monotonically increasing id; Call reads frames until
	// it sees the matching id, discarding unrelated events along the way.
	// Client is not safe for concurrent use: the driver serializes access.
	Client struct {
		conn    *websocket.Conn
		nextID  int64
		timeout time.Duration
	}

	// Tab describes one page target as reported by the /json/list discovery
	// endpoint. Index is positional within the filtered page list.
	Tab struct {
		Index    int
		TargetID string
		Title    string
		URL      string
	}

	cdpRequest struct {
		ID     int64          `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params,omitempty"`
	}

	cdpFrame struct {
		ID     int64           `json:"id,omitempty"`
		Method string          `json:"method,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  *cdpFrameError  `json:"error,omitempty"`
	}

	cdpFrameError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	discoveryTarget struct {
		ID                   string `json:"id"`
		Type                 string `json:"type"`
		Title                string `json:"title"`
		URL                  string `json:"url"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
)

// Dial opens a WebSocket connection to a page debugger URL.
func Dial(wsURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Client{conn: conn, timeout: defaultCallTimeout}, nil
}

// Close tears down the WebSocket connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call sends one CDP request and blocks until the matching response frame
// arrives. Event frames received in the meantime are discarded. An error
// frame on the matching id becomes a *CDPError.
func (c *Client) Call(method string, params map[string]any) (json.RawMessage, error) {
	id, err := c.send(method, params)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.timeout)
	for {
		frame, err := c.read(deadline)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		if frame.ID != id {
			continue
		}
		if frame.Error != nil {
			return nil, cdpErrorf(method, "%s (code %d)", frame.Error.Message, frame.Error.Code)
		}
		return frame.Result, nil
	}
}

// CallAndWait sends one CDP request and reads frames until both the matching
// response and the named event have been seen, or the timeout elapses. The
// response is returned even when the event never arrives; pages that never
// fire a load event must not wedge the agent.
func (c *Client) CallAndWait(method string, params map[string]any, event string, timeout time.Duration) (json.RawMessage, error) {
	id, err := c.send(method, params)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	haveResult, haveEvent := false, false
	deadline := time.Now().Add(timeout)
	for !(haveResult && haveEvent) {
		frame, err := c.read(deadline)
		if err != nil {
			if haveResult {
				return result, nil
			}
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		switch {
		case frame.ID == id && frame.Error != nil:
			return nil, cdpErrorf(method, "%s (code %d)", frame.Error.Message, frame.Error.Code)
		case frame.ID == id:
			result = frame.Result
			haveResult = true
		case frame.Method == event:
			haveEvent = true
		}
	}
	return result, nil
}

func (c *Client) send(method string, params map[string]any) (int64, error) {
	if c.conn == nil {
		return 0, cdpErrorf(method, "connection closed")
	}
	c.nextID++
	req := cdpRequest{ID: c.nextID, Method: method, Params: params}
	if err := c.conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("%s: write: %w", method, err)
	}
	return c.nextID, nil
}

func (c *Client) read(deadline time.Time) (*cdpFrame, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	var frame cdpFrame
	if err := c.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// discover verifies the HTTP discovery endpoint is reachable. Failures are
// reported as *NotRunningError with the port and a recovery hint.
func discover(base string, port int) error {
	resp, err := discoveryGet(base + "/json/version")
	if err != nil {
		return &NotRunningError{Port: port, Cause: err}
	}
	resp.Body.Close()
	return nil
}

// listTabs fetches /json/list and returns the page targets in discovery
// order, each annotated with its positional index.
func listTabs(base string, port int) ([]Tab, []string, error) {
	resp, err := discoveryGet(base + "/json/list")
	if err != nil {
		return nil, nil, &NotRunningError{Port: port, Cause: err}
	}
	defer resp.Body.Close()
	var targets []discoveryTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, nil, fmt.Errorf("parse /json/list: %w", err)
	}
	var tabs []Tab
	var wsURLs []string
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		tabs = append(tabs, Tab{Index: len(tabs), TargetID: t.ID, Title: t.Title, URL: t.URL})
		wsURLs = append(wsURLs, t.WebSocketDebuggerURL)
	}
	return tabs, wsURLs, nil
}

// closeTarget asks the browser to close a target via the HTTP endpoint.
func closeTarget(base, targetID string) error {
	resp, err := discoveryGet(base + "/json/close/" + url.PathEscape(targetID))
	if err != nil {
		return fmt.Errorf("close target %s: %w", targetID, err)
	}
	resp.Body.Close()
	return nil
}

func discoveryGet(u string) (*http.Response, error) {
	client := &http.Client{Timeout: discoveryTimeout}
	resp, err := client.Get(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return resp, nil
}

// normalizeBase turns a user-supplied CDP URL (http://host:port, host:port,
// ws://host:port) into the http discovery base.
func normalizeBase(cdpURL string) string {
	base := strings.TrimSuffix(cdpURL, "/")
	switch {
	case strings.HasPrefix(base, "ws://"):
		base = "http://" + strings.TrimPrefix(base, "ws://")
	case strings.HasPrefix(base, "wss://"):
		base = "https://" + strings.TrimPrefix(base, "wss://")
	case !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://"):
		base = "http://" + base
	}
	return base
}
