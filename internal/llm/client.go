// Package llm provides the generative backend contract and implementations.
//
// The engine consumes backends exclusively through the Client interface:
// an ordered stream of model.StreamChunk fragments delivered to a
// ChunkHandler, terminated by a final chunk that may carry tool calls.
// Cancellation propagates through the context; a handler error aborts the
// stream.
package llm

import (
	"context"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// ChunkHandler is called for each fragment during streaming. Returning an
// error stops the stream and surfaces the error to the caller.
type ChunkHandler func(chunk model.StreamChunk) error

// ChatMessage is a provider-agnostic conversation message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a primary exchange: the conversation so far, the
// new user message (last entry of Messages), and the document context the
// edit tool operates on.
type ChatRequest struct {
	Messages    []ChatMessage
	Document    string
	Selection   string
	Model       string
	MaxTokens   int
	Temperature float64

	// ThinkingBudget enables the reasoning trace when > 0 (tokens).
	ThinkingBudget int
}

// ReflectionRequest asks the backend to narrate an edit it just caused.
// ToolResult is a short structured description of the applied edit.
type ReflectionRequest struct {
	Messages   []ChatMessage
	ToolResult string
	Model      string
	MaxTokens  int
}

// StreamResult summarizes a completed stream for accounting.
type StreamResult struct {
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for generative backends.
type Client interface {
	// StreamChat runs the primary exchange, delivering fragments to onChunk
	// in arrival order. The returned chunk is the final one (Final == true)
	// so the caller can inspect ToolCalls after the sequence ends.
	StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkHandler) (*model.StreamChunk, *StreamResult, error)

	// StreamReflection runs the dependent narration stream. Tool use is
	// disabled; only answer fragments are delivered.
	StreamReflection(ctx context.Context, req *ReflectionRequest, onChunk ChunkHandler) (*StreamResult, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of generative backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new backend client for the given provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}
