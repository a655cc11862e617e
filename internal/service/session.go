// Package service provides business logic for the authoring platform.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
	"github.com/draftforge-ai/authoring-platform/pkg/metrics"
)

// SessionService manages authoring sessions. Sessions are held in memory:
// an authoring session is scoped to one editing workflow and does not
// survive a restart (the audit stream is the durable record).
type SessionService struct {
	llmClient llm.Client
	audit     engine.AuditPublisher
	locator   *engine.Locator
	engineCfg engine.Config
	logger    *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	meta   model.Session
	engine *engine.Session
}

// NewSessionService creates a new session service. audit may be nil.
func NewSessionService(llmClient llm.Client, audit engine.AuditPublisher, locator *engine.Locator, engineCfg engine.Config, log *logger.Logger) *SessionService {
	return &SessionService{
		llmClient: llmClient,
		audit:     audit,
		locator:   locator,
		engineCfg: engineCfg,
		logger:    log,
		sessions:  make(map[string]*sessionEntry),
	}
}

// Create creates a new authoring session.
func (s *SessionService) Create(ctx context.Context, tenantID, userID string, req *model.CreateSessionRequest) (*model.Session, error) {
	now := time.Now()

	meta := model.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  req.Metadata,
	}

	eng := engine.NewSession(meta.ID, tenantID, s.llmClient, s.locator, s.audit, s.logger, s.engineCfg)

	s.mu.Lock()
	s.sessions[meta.ID] = &sessionEntry{meta: meta, engine: eng}
	s.mu.Unlock()

	metrics.SessionsActive.Inc()
	s.logger.WithSession(tenantID, meta.ID).Info("session created")

	return &meta, nil
}

// Get retrieves the session engine by id, scoped to the tenant.
func (s *SessionService) Get(ctx context.Context, tenantID, sessionID string) (*engine.Session, error) {
	s.mu.RLock()
	entry, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists || entry.meta.TenantID != tenantID {
		return nil, fmt.Errorf("session not found")
	}
	return entry.engine, nil
}

// Describe returns the session metadata with live counters.
func (s *SessionService) Describe(ctx context.Context, tenantID, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	entry, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists || entry.meta.TenantID != tenantID {
		return nil, fmt.Errorf("session not found")
	}

	meta := entry.meta
	meta.MessageCount = entry.engine.MessageCount()
	meta.VersionCount = entry.engine.VersionCount()
	meta.Streaming = entry.engine.Streaming()
	return &meta, nil
}

// List retrieves sessions for a tenant, newest first.
func (s *SessionService) List(ctx context.Context, tenantID string, limit, offset int) (*model.ListSessionsResponse, error) {
	s.mu.RLock()
	var sessions []model.Session
	for _, entry := range s.sessions {
		if entry.meta.TenantID != tenantID {
			continue
		}
		meta := entry.meta
		meta.MessageCount = entry.engine.MessageCount()
		meta.VersionCount = entry.engine.VersionCount()
		meta.Streaming = entry.engine.Streaming()
		sessions = append(sessions, meta)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	total := len(sessions)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListSessionsResponse{
		Sessions: sessions[start:end],
		Total:    total,
		HasMore:  end < total,
	}, nil
}

// Delete removes a session. An in-flight exchange is stopped first.
func (s *SessionService) Delete(ctx context.Context, tenantID, sessionID string) error {
	s.mu.Lock()
	entry, exists := s.sessions[sessionID]
	if !exists || entry.meta.TenantID != tenantID {
		s.mu.Unlock()
		return fmt.Errorf("session not found")
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	entry.engine.Stop()
	metrics.SessionsActive.Dec()
	return nil
}
