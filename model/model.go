// Package model presents a uniform chat-completions-with-tools interface
// across heterogeneous LLM backends. Adapters wrap provider SDKs (OpenAI
// compatible, Anthropic native plus its OAuth-token variant, AWS Bedrock,
// Google Vertex) and translate the normalized Request/Response/Chunk types
// to and from provider wire formats. Provider quirks such as OpenRouter's
// OpenAI-compatible endpoint, Azure deployment routing or Vertex publisher
// paths live here and nowhere else.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

// ErrStreamingUnsupported is returned by Stream for providers that cannot
// stream.
var ErrStreamingUnsupported = errors.New("streaming not supported by this provider")

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type (
	// Client is the contract the agent loop uses to invoke LLM calls.
	// Implementations wrap provider SDKs and must be safe for reuse across
	// calls.
	Client interface {
		// Complete sends a chat completion request and returns the full
		// response.
		Complete(ctx context.Context, req Request) (Response, error)

		// Stream sends a chat completion request and returns a Streamer
		// yielding incremental chunks. The caller must close the streamer.
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Recv returns chunks until
	// io.EOF.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}

	// Request is a normalized chat completion request.
	Request struct {
		// Model is the provider-specific model identifier.
		Model string
		// Messages is the ordered conversation, system prompt included.
		Messages []Message
		// Tools lists the JSON-schema tool definitions exposed to the model.
		// When non-empty, tool choice is always auto.
		Tools []ToolDefinition
		// MaxTokens caps completion tokens. Zero uses the provider default.
		MaxTokens int
		// Temperature controls sampling. Zero means provider default.
		Temperature float32
	}

	// Message is one wire-format chat message.
	Message struct {
		Role    Role
		Content string
		// ToolCalls is set on assistant messages that request tools.
		ToolCalls []ToolCall
		// ToolCallID links a tool message to the assistant tool call it
		// answers.
		ToolCallID string
	}

	// ToolCall is a structured tool invocation emitted by the model.
	// Arguments is the raw JSON string exactly as the provider sent it.
	ToolCall struct {
		ID        string
		Name      string
		Arguments string
	}

	// ToolDefinition describes one tool to the model. Parameters is a JSON
	// schema document.
	ToolDefinition struct {
		Name        string
		Description string
		Parameters  json.RawMessage
	}

	// Response is a completed model turn.
	Response struct {
		Content    string
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is one increment of streamed output. Exactly one of Text,
	// ToolDelta and Usage is meaningful. A Usage chunk is the stream
	// terminator; when the provider never sends one, usage is unknown for
	// the turn.
	Chunk struct {
		Text      string
		ToolDelta *ToolCallDelta
		Usage     *TokenUsage
	}

	// ToolCallDelta is a fragment of a streamed tool call. Fragments sharing
	// an Index belong to the same call; Name and Arguments concatenate
	// across fragments.
	ToolCallDelta struct {
		Index     int
		ID        string
		Name      string
		Arguments string
	}

	// TokenUsage reports prompt-side and completion-side token counts for
	// one call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
	}
)

// Accumulate drains a streamer into a Response: text chunks concatenate,
// tool-call deltas merge by index, and the last usage chunk wins. onChunk,
// when non-nil, observes each text chunk as it arrives. The streamer is
// closed on return.
func Accumulate(s Streamer, onChunk func(string)) (Response, error) {
	defer s.Close()
	var resp Response
	calls := make(map[int]*ToolCall)
	order := []int{}
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, err
		}
		switch {
		case chunk.Text != "":
			resp.Content += chunk.Text
			if onChunk != nil {
				onChunk(chunk.Text)
			}
		case chunk.ToolDelta != nil:
			d := chunk.ToolDelta
			call, ok := calls[d.Index]
			if !ok {
				call = &ToolCall{}
				calls[d.Index] = call
				order = append(order, d.Index)
			}
			if d.ID != "" {
				call.ID = d.ID
			}
			call.Name += d.Name
			call.Arguments += d.Arguments
		case chunk.Usage != nil:
			resp.Usage = *chunk.Usage
		}
	}
	for _, idx := range order {
		resp.ToolCalls = append(resp.ToolCalls, *calls[idx])
	}
	return resp, nil
}
