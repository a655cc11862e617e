package model

import (
	"encoding/json"
	"time"
)

// EditToolName is the tool identifier the backend uses to request a
// document mutation. Calls with any other name are ignored.
const EditToolName = "edit_document"

// ToolCall is a structured edit instruction extracted from a backend
// response. Arguments arrive as raw JSON; the engine's resolver decides
// whether they describe a full or partial replacement.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// StreamChunk is one fragment of a backend response stream.
//
// ThinkingDelta fragments precede the first AnswerDelta in a well-formed
// response, but consumers must tolerate interleaving. The terminal chunk
// has Final set and may carry ToolCalls.
type StreamChunk struct {
	AnswerDelta   string     `json:"answer_delta,omitempty"`
	ThinkingDelta string     `json:"thinking_delta,omitempty"`
	ToolCalls     []ToolCall `json:"tool_calls,omitempty"`
	Final         bool       `json:"final,omitempty"`
}

// TokenEvent is a streamed answer fragment delivered over SSE.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// ThinkingEvent is a streamed reasoning fragment delivered over SSE.
type ThinkingEvent struct {
	Delta     string    `json:"delta"`
	StartedAt time.Time `json:"started_at"`
}

// EditEvent announces a committed document edit over SSE.
type EditEvent struct {
	Kind      string `json:"kind"` // "full" or "partial"
	VersionID string `json:"version_id"`
	Stage     string `json:"stage,omitempty"` // matcher stage for partial edits
}

// MessageCompleteEvent carries the settled assistant message.
type MessageCompleteEvent struct {
	Message Message `json:"message"`
}

// ErrorEvent represents a stream error delivered over SSE.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
