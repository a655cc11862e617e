package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// OpenAIClient is the OpenAI backend client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// StreamChat implements Client.StreamChat.
func (c *OpenAIClient) StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkHandler) (*model.StreamChunk, *StreamResult, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(req.Document, req.Selection),
	})
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	request := c.baseRequest(req.Model, req.MaxTokens, float32(req.Temperature), messages)
	request.Tools = []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        model.EditToolName,
				Description: editToolDescription,
				Parameters: map[string]any{
					"type":       "object",
					"properties": editToolSchema,
				},
			},
		},
	}

	final, tokensOut, err := c.consume(ctx, request, onChunk)
	if err != nil {
		return nil, nil, err
	}
	if err := onChunk(*final); err != nil {
		return nil, nil, err
	}

	return final, &StreamResult{
		Model:     request.Model,
		TokensIn:  estimateMessageTokens(messages),
		TokensOut: tokensOut,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// StreamReflection implements Client.StreamReflection.
func (c *OpenAIClient) StreamReflection(ctx context.Context, req *ReflectionRequest, onChunk ChunkHandler) (*StreamResult, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: buildReflectionPrompt(req.ToolResult),
	})

	request := c.baseRequest(req.Model, req.MaxTokens, 0, messages)

	_, tokensOut, err := c.consume(ctx, request, onChunk)
	if err != nil {
		return nil, err
	}
	if err := onChunk(model.StreamChunk{Final: true}); err != nil {
		return nil, err
	}

	return &StreamResult{
		Model:     request.Model,
		TokensIn:  estimateMessageTokens(messages),
		TokensOut: tokensOut,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *OpenAIClient) baseRequest(modelName string, maxTokens int, temperature float32, messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	if modelName == "" {
		modelName = openai.GPT4o
	}
	if maxTokens == 0 {
		maxTokens = 8192
	}
	return openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      true,
	}
}

// consume drives the completion stream, forwarding deltas in arrival order
// and assembling tool-call fragments by index. Returns the final chunk and
// the output token estimate.
func (c *OpenAIClient) consume(ctx context.Context, request openai.ChatCompletionRequest, onChunk ChunkHandler) (*model.StreamChunk, int, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, 0, err
	}
	defer stream.Close()

	var answer string
	var pending []pendingToolCall

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta

		if delta.ReasoningContent != "" {
			if err := onChunk(model.StreamChunk{ThinkingDelta: delta.ReasoningContent}); err != nil {
				return nil, 0, err
			}
		}

		if delta.Content != "" {
			answer += delta.Content
			if err := onChunk(model.StreamChunk{AnswerDelta: delta.Content}); err != nil {
				return nil, 0, err
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(pending) <= idx {
				pending = append(pending, pendingToolCall{})
			}
			if tc.ID != "" {
				pending[idx].id = tc.ID
			}
			if tc.Function.Name != "" {
				pending[idx].name = tc.Function.Name
			}
			pending[idx].args += tc.Function.Arguments
		}
	}

	final := model.StreamChunk{Final: true}
	for _, p := range pending {
		if p.name == "" {
			continue
		}
		final.ToolCalls = append(final.ToolCalls, model.ToolCall{
			ID:        p.id,
			Name:      p.name,
			Arguments: json.RawMessage(p.args),
		})
	}

	return &final, estimateTokens(answer), nil
}

type pendingToolCall struct {
	id   string
	name string
	args string
}

func estimateMessageTokens(messages []openai.ChatCompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokens(msg.Content)
	}
	return total
}
