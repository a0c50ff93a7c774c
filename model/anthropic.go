package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Anthropic requires max_tokens on every request.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements Client against the native Anthropic Messages
// API.
type AnthropicClient struct {
	api sdk.Client
}

// NewAnthropic builds a client for the Anthropic API. baseURL overrides the
// endpoint; empty uses the default.
func NewAnthropic(apiKey, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{api: sdk.NewClient(opts...)}
}

// NewAnthropicOAuth builds a client that authenticates with an OAuth bearer
// token (subscription tokens) instead of an x-api-key header. Everything
// else matches NewAnthropic.
func NewAnthropicOAuth(token, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAuthToken(token)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{api: sdk.NewClient(opts...)}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := encodeAnthropicRequest(req)
	if err != nil {
		return Response{}, err
	}
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic completion: %w", err)
	}
	resp := Response{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	resp.Usage = TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	return resp, nil
}

// Stream implements Client.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	params, err := encodeAnthropicRequest(req)
	if err != nil {
		return nil, err
	}
	return &anthropicStreamer{stream: c.api.Messages.NewStreaming(ctx, params)}, nil
}

func encodeAnthropicRequest(req Request) (sdk.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(blocks...))
		case RoleTool:
			params.Messages = append(params.Messages,
				sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	for _, def := range req.Tools {
		schema, err := anthropicSchema(def.Parameters)
		if err != nil {
			return sdk.MessageNewParams{}, fmt.Errorf("tool %s schema: %w", def.Name, err)
		}
		tool := sdk.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			tool.OfTool.Description = sdk.String(def.Description)
		}
		params.Tools = append(params.Tools, tool)
	}
	return params, nil
}

// anthropicSchema passes the raw JSON schema document through as extra
// fields so nested schema keywords survive the SDK's typed encoding.
func anthropicSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

// anthropicStreamer translates Messages streaming events into chunks. The
// prompt-side token count arrives on message_start and is held until the
// final message_delta supplies the completion count.
type anthropicStreamer struct {
	stream       *ssestream.Stream[sdk.MessageStreamEventUnion]
	promptTokens int
}

func (s *anthropicStreamer) Recv() (Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.MessageStartEvent:
			s.promptTokens = int(ev.Message.Usage.InputTokens)
		case sdk.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				return Chunk{ToolDelta: &ToolCallDelta{
					Index: int(ev.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}, nil
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					return Chunk{Text: delta.Text}, nil
				}
			case sdk.InputJSONDelta:
				if delta.PartialJSON != "" {
					return Chunk{ToolDelta: &ToolCallDelta{
						Index:     int(ev.Index),
						Arguments: delta.PartialJSON,
					}}, nil
				}
			}
		case sdk.MessageDeltaEvent:
			return Chunk{Usage: &TokenUsage{
				PromptTokens:     s.promptTokens,
				CompletionTokens: int(ev.Usage.OutputTokens),
			}}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, fmt.Errorf("anthropic stream: %w", err)
	}
	return Chunk{}, io.EOF
}

func (s *anthropicStreamer) Close() error { return s.stream.Close() }
