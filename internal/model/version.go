package model

import (
	"time"
)

// Reasons recorded on well-known version commits.
const (
	ReasonInitialGeneration = "Initial generation"
	ReasonManualSave        = "Manual save"
)

// DocumentVersion is an immutable snapshot of the working document.
// Versions are appended to the session ledger; timestamps are strictly
// increasing and ids are never reused.
type DocumentVersion struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`

	// Reason is "Initial generation", "Manual save", or the user prompt
	// that triggered an AI edit.
	Reason string `json:"reason"`
}

// SaveVersionRequest is the request to commit a manual save.
type SaveVersionRequest struct {
	Content string `json:"content"`
}

// ListVersionsResponse is the response for listing a session's versions.
type ListVersionsResponse struct {
	Versions  []DocumentVersion `json:"versions"`
	CurrentID string            `json:"current_id,omitempty"`
	PreviewID string            `json:"preview_id,omitempty"`
}
