// Package agent implements the tool-calling conversation loop: one agent
// owns a message history, streams LLM turns, executes the tool calls the
// model emits, keeps context pressure bounded through compaction, and
// broadcasts progress on the hooks bus.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/model"
	"github.com/chauffeur-ai/chauffeur/session"
	"github.com/chauffeur-ai/chauffeur/telemetry"
	"github.com/chauffeur-ai/chauffeur/tools"
	"github.com/chauffeur-ai/chauffeur/workspace"
)

// Agent phases reported by Probe.
const (
	PhaseStarting        = "starting"
	PhaseCallingLLM      = "calling_llm"
	PhaseToolCall        = "tool_call"
	PhaseDecomposing     = "decomposing"
	PhaseRunningSubtasks = "running_subtasks"
	PhaseFlushed         = "flushed"
	PhaseDone            = "done"
)

// Context-pressure thresholds as fractions of the model's context limit.
const (
	compactionThreshold = 0.75
	criticalThreshold   = 0.90
)

// toolResultEventCap bounds the result text carried on tool_call events.
const toolResultEventCap = 2000

type (
	// Options configures a new Agent. Client, Tools, Workspace and Model
	// are required; zero values elsewhere pick defaults.
	Options struct {
		Client   model.Client
		Tools    *tools.Registry
		Bus      hooks.Bus
		Log      telemetry.Logger
		Metrics  telemetry.Metrics
		Ws       *workspace.Workspace
		Provider string
		Model    string
		// MaxTokens caps completion tokens per LLM call.
		MaxTokens int
		// MaxIterations bounds loop iterations; <=0 uses 50, values above
		// 500 are clamped.
		MaxIterations int
		// ContextLimit overrides the per-model lookup when positive.
		ContextLimit int
		// SystemPrompt replaces the default template (sub-agents).
		SystemPrompt string
	}

	// Agent drives one conversation. Chat is not reentrant; Flush and
	// Probe are safe from other goroutines.
	Agent struct {
		client        model.Client
		registry      *tools.Registry
		bus           hooks.Bus
		log           telemetry.Logger
		metrics       telemetry.Metrics
		workspace     *workspace.Workspace
		provider      string
		modelID       string
		maxTokens     int
		maxIterations int
		contextLimit  int
		systemPrompt  string

		abort atomic.Bool

		mu               sync.Mutex
		messages         []model.Message
		usage            model.TokenUsage
		lifetime         model.TokenUsage
		lastPromptTokens int
		compactions      int
		sessionID        string
		createdAt        time.Time
		phase            string
		phaseStart       time.Time
		iteration        int
		lastTool         string
		delegate         func() Probe
	}

	// Probe is a read-only snapshot of agent state.
	Probe struct {
		Phase            string  `json:"phase"`
		Iteration        int     `json:"iteration"`
		LastTool         string  `json:"last_tool,omitempty"`
		ElapsedSeconds   float64 `json:"elapsed_seconds"`
		MessageCount     int     `json:"message_count"`
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		LastPromptTokens int     `json:"last_prompt_tokens"`
		ContextLimit     int     `json:"context_limit"`
	}
)

// New constructs an agent.
func New(opts Options) (*Agent, error) {
	if opts.Client == nil {
		return nil, errors.New("agent: model client is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	if opts.Ws == nil {
		return nil, errors.New("agent: workspace is required")
	}
	if opts.Model == "" {
		return nil, errors.New("agent: model id is required")
	}
	if opts.Bus == nil {
		opts.Bus = hooks.NewBus()
	}
	if opts.Log == nil {
		opts.Log = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	limit := opts.ContextLimit
	if limit <= 0 {
		limit = model.ContextLimit(opts.Model)
	}
	iterations := opts.MaxIterations
	if iterations <= 0 {
		iterations = 50
	}
	if iterations > 500 {
		iterations = 500
	}
	return &Agent{
		client:        opts.Client,
		registry:      opts.Tools,
		bus:           opts.Bus,
		log:           opts.Log,
		metrics:       opts.Metrics,
		workspace:     opts.Ws,
		provider:      opts.Provider,
		modelID:       opts.Model,
		maxTokens:     opts.MaxTokens,
		maxIterations: iterations,
		contextLimit:  limit,
		systemPrompt:  opts.SystemPrompt,
		phase:         PhaseStarting,
		phaseStart:    time.Now(),
	}, nil
}

// Chat runs the tool-calling loop for one user message and returns the
// final assistant text. onChunk receives streamed text fragments and may be
// nil. LLM failures propagate as errors; tool failures never do.
func (a *Agent) Chat(ctx context.Context, text string, onChunk func(string)) (string, error) {
	a.mu.Lock()
	a.messages = append(a.messages, model.Message{Role: model.RoleUser, Content: text})
	a.iteration = 0
	a.mu.Unlock()

	for i := 0; i < a.maxIterations; i++ {
		a.setPhase(PhaseCallingLLM)
		a.mu.Lock()
		a.iteration = i + 1
		a.mu.Unlock()

		if a.abort.Load() {
			return a.flushNow("flush")
		}
		if a.pressure() >= compactionThreshold {
			a.mu.Lock()
			path, err := a.compact("proactive")
			a.mu.Unlock()
			if err != nil {
				a.log.Warn(ctx, "compaction failed", "err", err)
			} else {
				a.log.Info(ctx, "context compacted", "dump", path)
				a.metrics.IncCounter("agent.compactions", 1)
			}
		}

		resp, err := a.callLLM(ctx, onChunk)
		if err != nil {
			return "", err
		}

		calls := resp.ToolCalls
		content := resp.Content
		if len(calls) == 0 {
			if fc, ok := parseFallbackCall(content, a.registry.Names()); ok {
				raw, _ := json.Marshal(fc.Args)
				calls = []model.ToolCall{{
					ID:        "fallback_" + uuid.NewString()[:8],
					Name:      fc.Name,
					Arguments: string(raw),
				}}
				content = fc.Cleaned
			}
		}

		a.mu.Lock()
		a.messages = append(a.messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		a.mu.Unlock()

		if len(calls) == 0 {
			a.setPhase(PhaseDone)
			a.publish(ctx, hooks.Event{Type: hooks.EventMessage, Message: content})
			a.publish(ctx, hooks.Event{Type: hooks.EventResponse, Response: &hooks.ResponseEvent{
				Text:             content,
				PromptTokens:     a.Usage().PromptTokens,
				CompletionTokens: a.Usage().CompletionTokens,
				SessionID:        a.SessionID(),
			}})
			return content, nil
		}

		for _, call := range calls {
			if a.abort.Load() {
				return a.flushNow("flush")
			}
			a.runTool(ctx, call)
		}
	}
	a.setPhase(PhaseDone)
	notice := fmt.Sprintf("Stopped after reaching the iteration cap (%d) without a final answer.", a.maxIterations)
	a.log.Warn(ctx, "iteration cap reached", "cap", a.maxIterations)
	return notice, nil
}

// callLLM assembles [system]+history, streams one completion and records
// usage. Usage is only overwritten when the stream carried a usage block.
func (a *Agent) callLLM(ctx context.Context, onChunk func(string)) (model.Response, error) {
	a.mu.Lock()
	system, err := renderSystemPrompt(a.systemPrompt, a.workspace.Root(), a.contextLimit, a.lastPromptTokens)
	if err != nil {
		a.mu.Unlock()
		return model.Response{}, err
	}
	msgs := make([]model.Message, 0, len(a.messages)+1)
	msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: system})
	msgs = append(msgs, a.messages...)
	a.mu.Unlock()

	a.publish(ctx, hooks.Event{Type: hooks.EventThinking})
	start := time.Now()
	streamer, err := a.client.Stream(ctx, model.Request{
		Model:     a.modelID,
		Messages:  msgs,
		Tools:     a.registry.Definitions(),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("agent: llm call: %w", err)
	}
	resp, err := model.Accumulate(streamer, onChunk)
	a.metrics.RecordTimer("agent.llm_call", time.Since(start), "model", a.modelID)
	if err != nil {
		return model.Response{}, fmt.Errorf("agent: llm stream: %w", err)
	}

	// a zero usage means the provider never sent the terminator block;
	// leave last_prompt_tokens untouched rather than silently zeroing it
	if resp.Usage != (model.TokenUsage{}) {
		a.mu.Lock()
		a.usage.PromptTokens += resp.Usage.PromptTokens
		a.usage.CompletionTokens += resp.Usage.CompletionTokens
		a.lastPromptTokens = resp.Usage.PromptTokens
		usage := a.usageEvent()
		a.mu.Unlock()
		a.publish(ctx, hooks.Event{Type: hooks.EventTokenUpdate, Usage: usage})
		if level := usage.Level; level != "" {
			a.publish(ctx, hooks.Event{Type: hooks.EventContextWarning, Usage: usage})
		}
	}
	return resp, nil
}

// runTool executes one tool call and appends its result to history.
func (a *Agent) runTool(ctx context.Context, call model.ToolCall) {
	a.setPhase(PhaseToolCall)
	a.mu.Lock()
	a.lastTool = call.Name
	a.mu.Unlock()

	args := map[string]any{}
	if call.Arguments != "" {
		// malformed arguments degrade to an empty bag; the tool reports
		// what is missing
		_ = json.Unmarshal([]byte(call.Arguments), &args)
	}
	start := time.Now()
	result := a.registry.Execute(ctx, call.Name, args)
	a.metrics.RecordTimer("agent.tool_call", time.Since(start), "tool", call.Name)
	a.log.Debug(ctx, "tool executed", "tool", call.Name, "chars", len(result))

	a.publish(ctx, hooks.Event{Type: hooks.EventToolCall, ToolCall: &hooks.ToolCallEvent{
		Tool:   call.Name,
		Params: args,
		Result: truncate(result, toolResultEventCap),
	}})

	a.mu.Lock()
	a.messages = append(a.messages, model.Message{
		Role:       model.RoleTool,
		Content:    result,
		ToolCallID: call.ID,
	})
	a.mu.Unlock()
}

// Flush aborts the run from any goroutine. When history is non-empty it
// writes the context dump synchronously so the path can be returned to the
// caller.
func (a *Agent) Flush() (string, bool) {
	a.abort.Store(true)
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return "", false
	}
	path, err := a.compact("flush")
	if err != nil {
		return "", false
	}
	a.phase = PhaseFlushed
	a.phaseStart = time.Now()
	return path, true
}

// flushNow handles an abort observed inside the loop.
func (a *Agent) flushNow(reason string) (string, error) {
	a.mu.Lock()
	path, err := a.compact(reason)
	a.phase = PhaseFlushed
	a.phaseStart = time.Now()
	a.mu.Unlock()
	a.abort.Store(false)
	if err != nil {
		return "Run aborted.", nil
	}
	return fmt.Sprintf("Run aborted; context saved to %s.", path), nil
}

// Probe snapshots agent state. With an active delegate (subtask runner),
// the sub-agent's phase, iteration and last tool shine through.
func (a *Agent) Probe() Probe {
	a.mu.Lock()
	p := Probe{
		Phase:            a.phase,
		Iteration:        a.iteration,
		LastTool:         a.lastTool,
		ElapsedSeconds:   time.Since(a.phaseStart).Seconds(),
		MessageCount:     len(a.messages),
		PromptTokens:     a.usage.PromptTokens,
		CompletionTokens: a.usage.CompletionTokens,
		LastPromptTokens: a.lastPromptTokens,
		ContextLimit:     a.contextLimit,
	}
	delegate := a.delegate
	a.mu.Unlock()
	if delegate != nil {
		sub := delegate()
		p.Phase = sub.Phase
		p.Iteration = sub.Iteration
		p.LastTool = sub.LastTool
		p.ElapsedSeconds = sub.ElapsedSeconds
	}
	return p
}

// SetDelegate points Probe at an active sub-agent; nil clears it.
func (a *Agent) SetDelegate(fn func() Probe) {
	a.mu.Lock()
	a.delegate = fn
	a.mu.Unlock()
}

// SetPhase exposes the decompose/run-subtasks phases to the planner.
func (a *Agent) SetPhase(phase string) { a.setPhase(phase) }

// Usage returns the cumulative token counters since the last compaction.
func (a *Agent) Usage() model.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// LifetimeUsage returns totals across compactions, current window included.
func (a *Agent) LifetimeUsage() model.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.TokenUsage{
		PromptTokens:     a.lifetime.PromptTokens + a.usage.PromptTokens,
		CompletionTokens: a.lifetime.CompletionTokens + a.usage.CompletionTokens,
	}
}

// Compactions reports how many times the context has been compacted.
func (a *Agent) Compactions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.compactions
}

// SessionID returns the persisted session id, empty before the first save.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Messages returns a copy of the conversation history.
func (a *Agent) Messages() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Message(nil), a.messages...)
}

// SeedUsage primes the token counters, used when restoring state and in
// pressure tests.
func (a *Agent) SeedUsage(usage model.TokenUsage, lastPrompt int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = usage
	a.lastPromptTokens = lastPrompt
}

// SaveSession persists the conversation through the session store.
func (a *Agent) SaveSession(store *session.Store) (*session.Session, error) {
	a.mu.Lock()
	s := &session.Session{
		ID:               a.sessionID,
		Model:            a.modelID,
		Provider:         a.provider,
		CreatedAt:        a.createdAt,
		PromptTokens:     a.usage.PromptTokens,
		CompletionTokens: a.usage.CompletionTokens,
		Messages:         append([]model.Message(nil), a.messages...),
	}
	a.mu.Unlock()
	if err := store.Save(s); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.sessionID = s.ID
	a.createdAt = s.CreatedAt
	a.mu.Unlock()
	return s, nil
}

// LoadSession replaces history and counters with a persisted session.
func (a *Agent) LoadSession(store *session.Store, id string) error {
	s, err := store.Load(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = s.ID
	a.createdAt = s.CreatedAt
	a.messages = append([]model.Message(nil), s.Messages...)
	a.usage = model.TokenUsage{
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
	}
	a.lastPromptTokens = 0
	return nil
}

// pressure returns last-prompt tokens as a fraction of the context limit.
func (a *Agent) pressure() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.contextLimit <= 0 {
		return 0
	}
	return float64(a.lastPromptTokens) / float64(a.contextLimit)
}

// usageEvent builds the bus payload. Caller holds the lock.
func (a *Agent) usageEvent() *hooks.UsageEvent {
	pct := 0.0
	if a.contextLimit > 0 {
		pct = float64(a.lastPromptTokens) / float64(a.contextLimit) * 100
	}
	level := ""
	switch {
	case pct >= criticalThreshold*100:
		level = "critical"
	case pct >= compactionThreshold*100:
		level = "warning"
	}
	return &hooks.UsageEvent{
		PromptTokens:     a.usage.PromptTokens,
		CompletionTokens: a.usage.CompletionTokens,
		LastPromptTokens: a.lastPromptTokens,
		ContextLimit:     a.contextLimit,
		PercentUsed:      pct,
		Level:            level,
	}
}

func (a *Agent) setPhase(phase string) {
	a.mu.Lock()
	if a.phase != phase {
		a.phase = phase
		a.phaseStart = time.Now()
	}
	a.mu.Unlock()
}

func (a *Agent) publish(ctx context.Context, event hooks.Event) {
	event.Time = time.Now().UTC()
	event.SessionID = a.SessionID()
	if err := a.bus.Publish(ctx, event); err != nil {
		a.log.Warn(ctx, "event publish", "err", err)
	}
}
