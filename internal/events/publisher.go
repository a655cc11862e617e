package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

const (
	// StreamName is the name of the authoring audit stream.
	StreamName = "AUTHORING"

	// SubjectPrefix is the prefix for all audit subjects.
	SubjectPrefix = "authoring"

	publishTimeout = 5 * time.Second
)

// Publisher writes audit events to JetStream. Publishing is best effort and
// asynchronous: the caller never waits on the stream ack, and failures are
// logged, never propagated to the engine.
type Publisher struct {
	client *Client
	logger *logger.Logger

	// publishMsg performs the underlying stream write.
	publishMsg func(ctx context.Context, subject string, data []byte) error
}

// NewPublisher creates a publisher over an established client.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	p := &Publisher{client: client, logger: log}
	p.publishMsg = func(ctx context.Context, subject string, data []byte) error {
		_, err := p.client.JetStream().Publish(ctx, subject, data)
		return err
	}
	return p
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Settled authoring turns and document version commits",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// TurnSubject returns the subject for a settled turn.
func TurnSubject(tenantID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, tenantID, sessionID, role)
}

// VersionSubject returns the subject for a version commit.
func VersionSubject(tenantID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.version", SubjectPrefix, tenantID, sessionID)
}

// EventSubject returns the subject for an exchange lifecycle event.
func EventSubject(tenantID, sessionID string, typ model.AuditEventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, tenantID, sessionID, typ)
}

// PublishTurn implements engine.AuditPublisher.
func (p *Publisher) PublishTurn(msg model.Message) {
	event := model.AuditEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: msg.SessionID,
		TenantID:  msg.TenantID,
		Type:      model.AuditTurnSettled,
		Message:   &msg,
		CreatedAt: time.Now(),
	}
	p.publish(TurnSubject(msg.TenantID, msg.SessionID, msg.Role), &event)
}

// PublishVersion implements engine.AuditPublisher.
func (p *Publisher) PublishVersion(v model.DocumentVersion) {
	event := model.AuditEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: v.SessionID,
		TenantID:  v.TenantID,
		Type:      model.AuditVersionCommitted,
		Version:   &v,
		Reason:    v.Reason,
		CreatedAt: time.Now(),
	}
	p.publish(VersionSubject(v.TenantID, v.SessionID), &event)
}

// PublishEvent implements engine.AuditPublisher.
func (p *Publisher) PublishEvent(tenantID, sessionID string, typ model.AuditEventType, reason string) {
	event := model.AuditEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		TenantID:  tenantID,
		Type:      typ,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	p.publish(EventSubject(tenantID, sessionID, typ), &event)
}

// publish dispatches the write off the caller's goroutine: the engine calls
// the publisher on its exchange path and must never wait on a stream ack.
func (p *Publisher) publish(subject string, event *model.AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal audit event", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.publishMsg(ctx, subject, data); err != nil {
			p.logger.Warn("failed to publish audit event",
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}
