// Package browser drives a locally running Chromium instance over the Chrome
// DevTools Protocol. It owns a WebSocket connection to one page target,
// exposes a synchronous request/response transport with event waiting, and
// provides the high-level page operations the agent's browser tool consumes:
// navigation, interactive-element indexing (across shadow-DOM boundaries),
// clicks and typing backed by real input events, text/HTML extraction,
// uploads and screenshots.
package browser

import (
	"errors"
	"fmt"
)

// ErrNotRunning is matched by errors.Is against *NotRunningError.
var ErrNotRunning = errors.New("browser not running")

type (
	// CDPError is a protocol-level failure: the remote returned an error
	// frame, page JavaScript threw, or an indexed element is stale. Drivers
	// raise it; the browser tool adapter turns it into a result string the
	// model can react to.
	CDPError struct {
		// Method is the CDP method that failed, when known.
		Method string
		// Message is the human-readable failure description.
		Message string
	}

	// NotRunningError reports that the CDP discovery endpoint was
	// unreachable. It carries the port and a recovery hint so the failure
	// message tells the user how to get a browser.
	NotRunningError struct {
		// Port is the debugging port that was probed.
		Port int
		// Cause is the underlying connection error.
		Cause error
	}
)

// Error implements the error interface.
func (e *CDPError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("cdp %s: %s", e.Method, e.Message)
	}
	return "cdp: " + e.Message
}

// Error implements the error interface.
func (e *NotRunningError) Error() string {
	return fmt.Sprintf(
		"no browser reachable on port %d; start one with a profile (e.g. run the launcher with --remote-debugging-port=%d) and retry",
		e.Port, e.Port,
	)
}

// Is matches ErrNotRunning so callers can use errors.Is without the concrete
// type.
func (e *NotRunningError) Is(target error) bool { return target == ErrNotRunning }

// Unwrap exposes the underlying connection error.
func (e *NotRunningError) Unwrap() error { return e.Cause }

func cdpErrorf(method, format string, args ...any) *CDPError {
	return &CDPError{Method: method, Message: fmt.Sprintf(format, args...)}
}
