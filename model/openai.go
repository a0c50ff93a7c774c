package model

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAIClient implements Client for every OpenAI-compatible backend:
// OpenAI itself, OpenRouter (same wire format, different base URL) and Azure
// OpenAI (deployment-name routing). The differences are confined to client
// configuration; request and response translation is shared.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAI builds a client for the OpenAI API. baseURL overrides the
// endpoint for self-hosted compatible servers; empty uses the default.
func NewOpenAI(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

// NewOpenRouter builds a client for OpenRouter's OpenAI-compatible endpoint.
func NewOpenRouter(apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

// NewAzure builds a client for Azure OpenAI. Requests route to the given
// deployment regardless of the requested model id.
func NewAzure(apiKey, endpoint, deployment string) (*OpenAIClient, error) {
	if endpoint == "" {
		return nil, errors.New("azure endpoint is required")
	}
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if deployment != "" {
		cfg.AzureModelMapperFunc = func(string) string { return deployment }
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}, nil
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.api.CreateChatCompletion(ctx, encodeOpenAIRequest(req, false))
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai completion: empty choices")
	}
	choice := resp.Choices[0]
	out := Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

// Stream implements Client. Usage reporting is requested through
// stream_options.include_usage so the terminator chunk carries token counts.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, encodeOpenAIRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &openaiStreamer{stream: stream}, nil
}

func encodeOpenAIRequest(req Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    encodeOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		for _, def := range req.Tools {
			out.Tools = append(out.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
		out.ToolChoice = "auto"
	}
	return out
}

func encodeOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		encoded := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			encoded.ToolCalls = append(encoded.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, encoded)
	}
	return out
}

// openaiStreamer adapts the SDK stream. One SDK frame may carry several
// logical increments (text plus tool deltas), so decoded chunks queue in
// pending and drain one per Recv.
type openaiStreamer struct {
	stream  *openai.ChatCompletionStream
	pending []Chunk
}

func (s *openaiStreamer) Recv() (Chunk, error) {
	for len(s.pending) == 0 {
		frame, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("openai stream recv: %w", err)
		}
		if frame.Usage != nil {
			s.pending = append(s.pending, Chunk{Usage: &TokenUsage{
				PromptTokens:     frame.Usage.PromptTokens,
				CompletionTokens: frame.Usage.CompletionTokens,
			}})
		}
		if len(frame.Choices) == 0 {
			continue
		}
		delta := frame.Choices[0].Delta
		if delta.Content != "" {
			s.pending = append(s.pending, Chunk{Text: delta.Content})
		}
		for _, call := range delta.ToolCalls {
			idx := 0
			if call.Index != nil {
				idx = *call.Index
			}
			s.pending = append(s.pending, Chunk{ToolDelta: &ToolCallDelta{
				Index:     idx,
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			}})
		}
	}
	chunk := s.pending[0]
	s.pending = s.pending[1:]
	return chunk, nil
}

func (s *openaiStreamer) Close() error {
	s.stream.Close()
	return nil
}
