package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockRuntime is the subset of the AWS Bedrock runtime client the adapter
// uses. It matches *bedrockruntime.Client; tests substitute a fake.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockClient implements Client on top of the AWS Bedrock Converse API.
// Credentials come from the AWS SDK default chain (env, shared config,
// instance roles).
type BedrockClient struct {
	runtime BedrockRuntime
}

// NewBedrock loads the AWS default configuration and builds a Bedrock
// client. region overrides the chain's region when non-empty.
func NewBedrock(ctx context.Context, region string) (*BedrockClient, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockClient{runtime: bedrockruntime.NewFromConfig(cfg)}, nil
}

// NewBedrockWithRuntime builds a client around an existing runtime,
// typically a fake in tests.
func NewBedrockWithRuntime(runtime BedrockRuntime) *BedrockClient {
	return &BedrockClient{runtime: runtime}
}

// Complete implements Client.
func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	input, err := encodeConverse(req)
	if err != nil {
		return Response{}, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("bedrock converse: %w", err)
	}
	resp := Response{StopReason: string(out.StopReason)}
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Content += b.Value
			case *brtypes.ContentBlockMemberToolUse:
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      aws.ToString(b.Value.Name),
					Arguments: decodeDocument(b.Value.Input),
				})
			}
		}
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

// Stream implements Client.
func (c *BedrockClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	input, err := encodeConverse(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		ToolConfig:      input.ToolConfig,
		InferenceConfig: input.InferenceConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	stream := out.GetStream()
	return &bedrockStreamer{stream: stream, events: stream.Events()}, nil
}

// bedrockModelID applies Bedrock's namespace prefix to bare Anthropic model
// ids so both "claude-..." and full "anthropic.claude-..." forms work.
func bedrockModelID(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic." + model
	}
	return model
}

func encodeConverse(req Request) (*bedrockruntime.ConverseInput, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(bedrockModelID(req.Model)),
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		if req.Temperature > 0 {
			cfg.Temperature = aws.Float32(req.Temperature)
		}
		input.InferenceConfig = cfg
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case RoleUser:
			input.Messages = append(input.Messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case RoleAssistant:
			var blocks []brtypes.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, call := range m.ToolCalls {
				var args any
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			input.Messages = append(input.Messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			input.Messages = append(input.Messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: m.Content},
					},
				}}},
			})
		}
	}
	if len(req.Tools) > 0 {
		var toolList []brtypes.Tool
		for _, def := range req.Tools {
			var schema map[string]any
			if len(def.Parameters) > 0 {
				if err := json.Unmarshal(def.Parameters, &schema); err != nil {
					return nil, fmt.Errorf("tool %s schema: %w", def.Name, err)
				}
			}
			spec := brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			}
			if def.Description != "" {
				spec.Description = aws.String(def.Description)
			}
			toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
		}
		input.ToolConfig = &brtypes.ToolConfiguration{
			Tools:      toolList,
			ToolChoice: &brtypes.ToolChoiceMemberAuto{Value: brtypes.AutoToolChoice{}},
		}
	}
	return input, nil
}

func decodeDocument(doc document.Interface) string {
	if doc == nil {
		return "{}"
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// bedrockStreamer translates ConverseStream events into chunks. Usage
// arrives on the trailing metadata event.
type bedrockStreamer struct {
	stream *bedrockruntime.ConverseStreamEventStream
	events <-chan brtypes.ConverseStreamOutput
}

func (s *bedrockStreamer) Recv() (Chunk, error) {
	for event := range s.events {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				return Chunk{ToolDelta: &ToolCallDelta{
					Index: int(aws.ToInt32(ev.Value.ContentBlockIndex)),
					ID:    aws.ToString(start.Value.ToolUseId),
					Name:  aws.ToString(start.Value.Name),
				}}, nil
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					return Chunk{Text: delta.Value}, nil
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if input := aws.ToString(delta.Value.Input); input != "" {
					return Chunk{ToolDelta: &ToolCallDelta{
						Index:     int(aws.ToInt32(ev.Value.ContentBlockIndex)),
						Arguments: input,
					}}, nil
				}
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				return Chunk{Usage: &TokenUsage{
					PromptTokens:     int(aws.ToInt32(ev.Value.Usage.InputTokens)),
					CompletionTokens: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
				}}, nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, fmt.Errorf("bedrock stream: %w", err)
	}
	return Chunk{}, io.EOF
}

func (s *bedrockStreamer) Close() error { return s.stream.Close() }
