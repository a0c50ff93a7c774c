package agent

import (
	"sync"

	"github.com/chauffeur-ai/chauffeur/config"
	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/schedule"
	"github.com/chauffeur-ai/chauffeur/session"
	"github.com/chauffeur-ai/chauffeur/telemetry"
)

// Host collects the process-wide collaborators that would otherwise live in
// globals: configuration, the event bus, the scheduler, the session store
// and the currently active agent. main owns one; tests build their own.
type Host struct {
	Config    *config.Config
	Bus       hooks.Bus
	Log       telemetry.Logger
	Metrics   telemetry.Metrics
	Scheduler *schedule.Scheduler
	Sessions  *session.Store

	mu      sync.Mutex
	current *Agent
}

// Current returns the active agent, nil when none is running.
func (h *Host) Current() *Agent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// SetCurrent installs the active agent; nil clears it.
func (h *Host) SetCurrent(a *Agent) {
	h.mu.Lock()
	h.current = a
	h.mu.Unlock()
}

// FlushCurrent aborts the active agent's run, returning the dump path when
// one was written.
func (h *Host) FlushCurrent() (string, bool) {
	a := h.Current()
	if a == nil {
		return "", false
	}
	return a.Flush()
}
