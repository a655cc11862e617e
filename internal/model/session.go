package model

import (
	"time"
)

// Session represents an authoring session: one working document, its
// conversation history, and its version ledger. Sessions are process-local
// and scoped to a single authoring workflow.
type Session struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	MessageCount int  `json:"message_count,omitempty"`
	VersionCount int  `json:"version_count,omitempty"`
	Streaming    bool `json:"streaming,omitempty"`
}

// CreateSessionRequest is the request to create a new authoring session.
type CreateSessionRequest struct {
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}

// GenerateDocumentRequest is the request to generate the initial working
// document from extracted source text.
type GenerateDocumentRequest struct {
	SourceText string `json:"source_text"`
	Prompt     string `json:"prompt,omitempty"`
	Model      string `json:"model,omitempty"`
}

// DocumentResponse returns the current (or previewed) document markup.
type DocumentResponse struct {
	Content   string `json:"content"`
	VersionID string `json:"version_id,omitempty"`
	Preview   bool   `json:"preview,omitempty"`
}
