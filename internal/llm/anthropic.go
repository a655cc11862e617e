package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// AnthropicClient is the Anthropic backend client.
type AnthropicClient struct {
	client *anthropic.Client
	apiKey string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicClient{
		client: &client,
		apiKey: apiKey,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// StreamChat implements Client.StreamChat.
func (c *AnthropicClient) StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkHandler) (*model.StreamChunk, *StreamResult, error) {
	start := time.Now()

	params := c.baseParams(req.Model, req.MaxTokens, req.Messages)
	params.System = []anthropic.TextBlockParam{
		{Text: buildSystemPrompt(req.Document, req.Selection)},
	}
	params.Tools = []anthropic.ToolUnionParam{editTool()}

	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	msg, err := c.consume(ctx, params, onChunk)
	if err != nil {
		return nil, nil, err
	}

	final := model.StreamChunk{
		Final:     true,
		ToolCalls: extractToolCalls(msg.Content),
	}
	if err := onChunk(final); err != nil {
		return nil, nil, err
	}

	return &final, &StreamResult{
		Model:     string(msg.Model),
		TokensIn:  int(msg.Usage.InputTokens),
		TokensOut: int(msg.Usage.OutputTokens),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// StreamReflection implements Client.StreamReflection. No tools are offered,
// so the narration can only produce answer text.
func (c *AnthropicClient) StreamReflection(ctx context.Context, req *ReflectionRequest, onChunk ChunkHandler) (*StreamResult, error) {
	start := time.Now()

	messages := append([]ChatMessage{}, req.Messages...)
	messages = append(messages, ChatMessage{
		Role:    string(model.RoleUser),
		Content: buildReflectionPrompt(req.ToolResult),
	})

	params := c.baseParams(req.Model, req.MaxTokens, messages)

	msg, err := c.consume(ctx, params, onChunk)
	if err != nil {
		return nil, err
	}

	if err := onChunk(model.StreamChunk{Final: true}); err != nil {
		return nil, err
	}

	return &StreamResult{
		Model:     string(msg.Model),
		TokensIn:  int(msg.Usage.InputTokens),
		TokensOut: int(msg.Usage.OutputTokens),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *AnthropicClient) baseParams(modelName string, maxTokens int, messages []ChatMessage) anthropic.MessageNewParams {
	m := anthropic.ModelClaudeSonnet4_5_20250929
	if modelName != "" {
		m = anthropic.Model(modelName)
	}
	if maxTokens == 0 {
		maxTokens = 8192
	}

	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case string(model.RoleAssistant):
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return anthropic.MessageNewParams{
		Model:     m,
		MaxTokens: int64(maxTokens),
		Messages:  anthropicMsgs,
	}
}

// consume drives the SSE stream, forwarding thinking and answer deltas to
// onChunk in arrival order, and returns the accumulated message.
func (c *AnthropicClient) consume(ctx context.Context, params anthropic.MessageNewParams, onChunk ChunkHandler) (*anthropic.Message, error) {
	stream := c.client.Messages.NewStreaming(ctx, params)

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, err
		}

		deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}

		switch delta := deltaEvent.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if delta.Text == "" {
				continue
			}
			if err := onChunk(model.StreamChunk{AnswerDelta: delta.Text}); err != nil {
				return nil, err
			}
		case anthropic.ThinkingDelta:
			if delta.Thinking == "" {
				continue
			}
			if err := onChunk(model.StreamChunk{ThinkingDelta: delta.Thinking}); err != nil {
				return nil, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &msg, nil
}

func editTool() anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties: editToolSchema,
	}
	tool := anthropic.ToolUnionParamOfTool(schema, model.EditToolName)
	tool.OfTool.Description = anthropic.String(editToolDescription)
	return tool
}

// extractToolCalls pulls tool_use blocks out of an accumulated message.
func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCall {
	var calls []model.ToolCall
	for _, block := range content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			calls = append(calls, model.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: toolUse.Input,
			})
		}
	}
	return calls
}
