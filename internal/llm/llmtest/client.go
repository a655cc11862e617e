// Package llmtest provides a scripted backend client for tests.
package llmtest

import (
	"context"

	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// Client implements llm.Client with scripted chunk sequences.
type Client struct {
	// ChatChunks is delivered, in order, on StreamChat. The last chunk is
	// treated as final if none is marked.
	ChatChunks []model.StreamChunk

	// ReflectionChunks is delivered on StreamReflection.
	ReflectionChunks []model.StreamChunk

	// ChatErr / ReflectionErr abort the corresponding stream after any
	// scripted chunks have been delivered.
	ChatErr       error
	ReflectionErr error

	// ChatFunc overrides the scripted behavior entirely when set.
	ChatFunc func(ctx context.Context, req *llm.ChatRequest, onChunk llm.ChunkHandler) (*model.StreamChunk, *llm.StreamResult, error)

	// Recorded requests for assertions.
	ChatRequests       []*llm.ChatRequest
	ReflectionRequests []*llm.ReflectionRequest
}

// StreamChat implements llm.Client.
func (c *Client) StreamChat(ctx context.Context, req *llm.ChatRequest, onChunk llm.ChunkHandler) (*model.StreamChunk, *llm.StreamResult, error) {
	c.ChatRequests = append(c.ChatRequests, req)

	if c.ChatFunc != nil {
		return c.ChatFunc(ctx, req, onChunk)
	}

	final, err := deliver(ctx, c.ChatChunks, c.ChatErr, onChunk)
	if err != nil {
		return nil, nil, err
	}
	return final, &llm.StreamResult{Model: "scripted"}, nil
}

// StreamReflection implements llm.Client.
func (c *Client) StreamReflection(ctx context.Context, req *llm.ReflectionRequest, onChunk llm.ChunkHandler) (*llm.StreamResult, error) {
	c.ReflectionRequests = append(c.ReflectionRequests, req)

	if _, err := deliver(ctx, c.ReflectionChunks, c.ReflectionErr, onChunk); err != nil {
		return nil, err
	}
	return &llm.StreamResult{Model: "scripted"}, nil
}

// Name implements llm.Client.
func (c *Client) Name() string { return "scripted" }

func deliver(ctx context.Context, chunks []model.StreamChunk, failWith error, onChunk llm.ChunkHandler) (*model.StreamChunk, error) {
	var final *model.StreamChunk
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i == len(chunks)-1 && failWith == nil && !chunk.Final {
			chunk.Final = true
		}
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
		if chunk.Final {
			cp := chunk
			final = &cp
		}
	}
	if failWith != nil {
		return nil, failWith
	}
	if final == nil {
		f := model.StreamChunk{Final: true}
		if err := onChunk(f); err != nil {
			return nil, err
		}
		final = &f
	}
	return final, nil
}
