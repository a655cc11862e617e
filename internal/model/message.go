// Package model defines data structures for the authoring platform.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnStatus tracks the lifecycle of an assistant turn. The trailing
// assistant message of an in-flight exchange is the only message that may
// be in StatusPending or StatusStreaming.
type TurnStatus string

const (
	StatusPending   TurnStatus = "pending"
	StatusStreaming TurnStatus = "streaming"
	StatusSettled   TurnStatus = "settled"
	StatusCancelled TurnStatus = "cancelled"
)

// Message represents one conversational turn in an authoring session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id,omitempty"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Thinking holds the backend's reasoning trace, accumulated separately
	// from Content and never truncated within a turn.
	Thinking          string     `json:"thinking,omitempty"`
	ThinkingStartedAt *time.Time `json:"thinking_started_at,omitempty"`

	// Status is meaningful for assistant messages only.
	Status TurnStatus `json:"status,omitempty"`

	// EditApplied marks an assistant turn whose tool call mutated the document.
	EditApplied bool `json:"edit_applied,omitempty"`

	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	StreamStarted *time.Time `json:"stream_started,omitempty"`
	StreamEnded   *time.Time `json:"stream_ended,omitempty"`
}

// SendMessageRequest is the request to send a chat message.
type SendMessageRequest struct {
	Content   string `json:"content"`
	Selection string `json:"selection,omitempty"`
	Model     string `json:"model,omitempty"`
}

// EditMessageRequest is the request to edit a prior user message and resend it.
type EditMessageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// ListMessagesResponse is the response for listing session messages.
type ListMessagesResponse struct {
	Messages  []Message `json:"messages"`
	Streaming bool      `json:"streaming"`
}
