// Package hooks publishes agent progress events to registered subscribers.
//
// Everything the agent does (LLM calls in flight, tool executions, token
// accounting, context warnings, subtask and scheduled-run lifecycle) is
// broadcast as a tagged Event on a Bus. External collaborators (websocket
// fan-out, CLIs, tests) subscribe to the bus; the core never holds a
// reference to a client.
package hooks

import "time"

// EventType tags an Event so subscribers can switch on the kind without
// inspecting payload fields.
type EventType string

// Event kinds emitted by the agent core.
const (
	// EventThinking signals an LLM call is in flight.
	EventThinking EventType = "thinking"
	// EventToolCall reports a completed tool execution.
	EventToolCall EventType = "tool_call"
	// EventMessage carries a final assistant text message.
	EventMessage EventType = "message"
	// EventResponse is the final composite result of a chat run.
	EventResponse EventType = "response"
	// EventTokenUpdate reports running token totals after an LLM call.
	EventTokenUpdate EventType = "token_update"
	// EventContextWarning reports warning/critical context pressure.
	EventContextWarning EventType = "context_warning"
	// EventSubtaskProgress reports decomposed-plan lifecycle transitions.
	EventSubtaskProgress EventType = "subtask_progress"
	// EventResearchProgress reports deep-research subtopic progress.
	EventResearchProgress EventType = "research_progress"
	// EventResearchComplete reports deep-research completion.
	EventResearchComplete EventType = "research_complete"
	// EventResearchError reports a deep-research failure.
	EventResearchError EventType = "research_error"
	// EventCronRunStart reports a scheduled run starting.
	EventCronRunStart EventType = "cron_run_start"
	// EventCronRunDone reports a scheduled run completing.
	EventCronRunDone EventType = "cron_run_done"
	// EventCronRunError reports a scheduled run failing.
	EventCronRunError EventType = "cron_run_error"
)

// Subtask phases carried by EventSubtaskProgress.
const (
	SubtaskPhasePlan        = "plan"
	SubtaskPhaseStart       = "subtask_start"
	SubtaskPhaseDone        = "subtask_done"
	SubtaskPhaseStreamChunk = "stream_chunk"
)

type (
	// Event is the tagged record broadcast to all subscribers. Type selects
	// which payload pointer is populated; all other payloads are nil.
	Event struct {
		// Type tags the event kind.
		Type EventType `json:"type"`
		// Time records when the event was published.
		Time time.Time `json:"time"`
		// SessionID identifies the originating session when known.
		SessionID string `json:"session_id,omitempty"`

		// ToolCall is set for EventToolCall.
		ToolCall *ToolCallEvent `json:"tool_call,omitempty"`
		// Message is set for EventMessage (final assistant text).
		Message string `json:"message,omitempty"`
		// Chunk is set for streamed assistant text fragments on
		// EventSubtaskProgress stream_chunk phases and EventThinking deltas.
		Chunk string `json:"chunk,omitempty"`
		// Response is set for EventResponse.
		Response *ResponseEvent `json:"response,omitempty"`
		// Usage is set for EventTokenUpdate and EventContextWarning.
		Usage *UsageEvent `json:"usage,omitempty"`
		// Subtask is set for EventSubtaskProgress.
		Subtask *SubtaskEvent `json:"subtask,omitempty"`
		// Research is set for the research_* kinds.
		Research *ResearchEvent `json:"research,omitempty"`
		// Cron is set for the cron_run_* kinds.
		Cron *CronEvent `json:"cron,omitempty"`
	}

	// ToolCallEvent describes one executed tool call. Result is capped at
	// 2000 characters by the publisher.
	ToolCallEvent struct {
		Tool   string         `json:"tool"`
		Params map[string]any `json:"params,omitempty"`
		Result string         `json:"result"`
	}

	// ResponseEvent is the final composite payload of a chat run.
	ResponseEvent struct {
		Text             string `json:"text"`
		PromptTokens     int    `json:"prompt_tokens"`
		CompletionTokens int    `json:"completion_tokens"`
		SessionID        string `json:"session_id,omitempty"`
	}

	// UsageEvent reports context pressure. Level is "warning" (>=75%) or
	// "critical" (>=90%) for EventContextWarning and empty for plain token
	// updates.
	UsageEvent struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		LastPromptTokens int     `json:"last_prompt_tokens"`
		ContextLimit     int     `json:"context_limit"`
		PercentUsed      float64 `json:"percent_used"`
		Level            string  `json:"level,omitempty"`
	}

	// SubtaskEvent reports a plan or subtask lifecycle transition.
	SubtaskEvent struct {
		Phase   string   `json:"phase"`
		Index   int      `json:"index,omitempty"`
		Total   int      `json:"total,omitempty"`
		Task    string   `json:"task,omitempty"`
		Tool    string   `json:"tool,omitempty"`
		Output  string   `json:"output,omitempty"`
		Status  string   `json:"status,omitempty"`
		Plan    []string `json:"plan,omitempty"`
		Elapsed float64  `json:"elapsed_seconds,omitempty"`
	}

	// ResearchEvent reports deep-research lifecycle.
	ResearchEvent struct {
		Topic     string `json:"topic,omitempty"`
		Subtopic  string `json:"subtopic,omitempty"`
		Index     int    `json:"index,omitempty"`
		Total     int    `json:"total,omitempty"`
		OutputDir string `json:"output_dir,omitempty"`
		Error     string `json:"error,omitempty"`
	}

	// CronEvent reports scheduled-run lifecycle.
	CronEvent struct {
		JobID   string `json:"job_id"`
		JobName string `json:"job_name,omitempty"`
		RunID   string `json:"run_id"`
		Status  string `json:"status,omitempty"`
		Error   string `json:"error,omitempty"`
	}
)
