package model

import (
	"time"
)

// AuditEventType classifies audit-stream events.
type AuditEventType string

const (
	AuditTurnSettled      AuditEventType = "turn_settled"
	AuditVersionCommitted AuditEventType = "version_committed"
	AuditExchangeError    AuditEventType = "exchange_error"
	AuditExchangeCancel   AuditEventType = "exchange_cancel"
)

// AuditEvent is the envelope published to the audit stream for settled
// turns and version commits. The audit stream is an observability surface;
// the engine never reads it back.
type AuditEvent struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	TenantID  string           `json:"tenant_id"`
	Type      AuditEventType   `json:"type"`
	Message   *Message         `json:"message,omitempty"`
	Version   *DocumentVersion `json:"version,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
