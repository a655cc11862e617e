package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
	"github.com/draftforge-ai/authoring-platform/pkg/metrics"
)

// Update is one observable step of an in-flight exchange, delivered to the
// caller's sink (typically an SSE writer) in processing order.
type Update struct {
	Kind     string // "thinking", "token", "edit", "message_complete", "error"
	Token    *model.TokenEvent
	Thinking *model.ThinkingEvent
	Edit     *model.EditEvent
	Message  *model.Message
	Err      *model.ErrorEvent
}

// UpdateSink receives exchange updates. Returning an error aborts the
// exchange (the client is gone).
type UpdateSink func(Update) error

// AuditPublisher receives settled turns and version commits. Implementations
// must be non-blocking from the engine's point of view; a nil publisher
// disables auditing.
type AuditPublisher interface {
	PublishTurn(msg model.Message)
	PublishVersion(v model.DocumentVersion)
	PublishEvent(tenantID, sessionID string, typ model.AuditEventType, reason string)
}

// Config holds per-session engine settings.
type Config struct {
	DefaultModel   string
	MaxTokens      int
	ThinkingBudget int
	ContextBudget  int
}

// Session owns one authoring session: the conversation history, the version
// ledger, and the exchange pipeline that connects them to the backend.
// All mutation of messages goes through the defined transitions here; all
// mutation of document content goes through the ledger.
type Session struct {
	id       string
	tenantID string

	mu        sync.Mutex
	messages  []model.Message
	ledger    *VersionLedger
	streaming bool
	cancel    context.CancelFunc

	client  llm.Client
	locator *Locator
	audit   AuditPublisher
	log     *logger.Logger
	cfg     Config
}

// NewSession creates a session engine.
func NewSession(id, tenantID string, client llm.Client, locator *Locator, audit AuditPublisher, log *logger.Logger, cfg Config) *Session {
	if locator == nil {
		locator = NewLocator()
	}
	return &Session{
		id:       id,
		tenantID: tenantID,
		ledger:   NewVersionLedger(id, tenantID),
		client:   client,
		locator:  locator,
		audit:    audit,
		log:      log.WithSession(tenantID, id),
		cfg:      cfg,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TenantID returns the owning tenant.
func (s *Session) TenantID() string { return s.tenantID }

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Streaming reports whether an exchange is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// MessageCount returns the history length.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Send starts a new exchange with the given prompt.
func (s *Session) Send(ctx context.Context, req *model.SendMessageRequest, sink UpdateSink) error {
	prompt := strings.TrimSpace(req.Content)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return s.exchange(ctx, exchangeParams{
		prompt:     prompt,
		selection:  req.Selection,
		model:      req.Model,
		truncateTo: -1,
		promptFrom: -1,
	}, sink)
}

// EditMessage truncates history to just before the user message at index
// and resends newContent as a fresh user turn. Assistant replies after that
// point are discarded, not archived.
func (s *Session) EditMessage(ctx context.Context, index int, req *model.EditMessageRequest, sink UpdateSink) error {
	prompt := strings.TrimSpace(req.Content)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return s.exchange(ctx, exchangeParams{
		prompt:       prompt,
		model:        req.Model,
		truncateTo:   index,
		requireRole:  model.RoleUser,
		requireIndex: index,
		promptFrom:   -1,
	}, sink)
}

// RetryUserMessage resends the exact content of the user message at index,
// using the same truncation rule as EditMessage.
func (s *Session) RetryUserMessage(ctx context.Context, index int, sink UpdateSink) error {
	return s.exchange(ctx, exchangeParams{
		truncateTo:   index,
		requireRole:  model.RoleUser,
		requireIndex: index,
		promptFrom:   index,
	}, sink)
}

// RetryAssistantMessage regenerates the assistant message at index by
// resending the nearest preceding user message. With no preceding user
// message it is a no-op.
func (s *Session) RetryAssistantMessage(ctx context.Context, index int, sink UpdateSink) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.messages) || s.messages[index].Role != model.RoleAssistant {
		s.mu.Unlock()
		return ErrBadTurnIndex
	}
	userIdx := -1
	for i := index - 1; i >= 0; i-- {
		if s.messages[i].Role == model.RoleUser {
			userIdx = i
			break
		}
	}
	s.mu.Unlock()

	if userIdx < 0 {
		return nil
	}
	return s.exchange(ctx, exchangeParams{
		truncateTo:   userIdx,
		requireRole:  model.RoleUser,
		requireIndex: userIdx,
		promptFrom:   userIdx,
	}, sink)
}

// Stop cancels the in-flight exchange, if any. The cancelled turn leaves no
// artifact other than the user's own message.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears all messages. The version ledger is unaffected.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrExchangeInFlight
	}
	s.messages = nil
	return nil
}

type exchangeParams struct {
	prompt    string
	selection string
	model     string

	// truncateTo >= 0 truncates history to that index (exclusive) before
	// appending the new turn, after validating requireRole at requireIndex.
	truncateTo   int
	requireRole  model.Role
	requireIndex int

	// promptFrom >= 0 takes the prompt from the message at that index
	// (read before truncation). Used by the retry operations.
	promptFrom int
}

// exchange appends the user turn plus a placeholder assistant turn, then
// runs the full pipeline: primary stream, tool-call resolution, patch
// application, version commit, and reflection. All failures are converted
// to terminal message states; the returned error covers only rejected
// preconditions.
func (s *Session) exchange(parent context.Context, p exchangeParams, sink UpdateSink) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrExchangeInFlight
	}

	if p.truncateTo >= 0 {
		if p.requireIndex < 0 || p.requireIndex >= len(s.messages) || s.messages[p.requireIndex].Role != p.requireRole {
			s.mu.Unlock()
			return ErrBadTurnIndex
		}
		if p.promptFrom >= 0 && p.prompt == "" {
			p.prompt = s.messages[p.promptFrom].Content
		}
		s.messages = s.messages[:p.truncateTo]
	}
	if strings.TrimSpace(p.prompt) == "" {
		s.mu.Unlock()
		return ErrEmptyPrompt
	}

	now := time.Now()
	userMsg := model.Message{
		ID:        newID(),
		SessionID: s.id,
		TenantID:  s.tenantID,
		Role:      model.RoleUser,
		Content:   p.prompt,
		CreatedAt: now,
	}
	placeholder := model.Message{
		ID:        newID(),
		SessionID: s.id,
		TenantID:  s.tenantID,
		Role:      model.RoleAssistant,
		Status:    model.StatusPending,
		CreatedAt: now,
	}
	s.messages = append(s.messages, userMsg, placeholder)

	ctx, cancel := context.WithCancel(parent)
	s.streaming = true
	s.cancel = cancel

	history := s.historyLocked(placeholder.ID)
	document := s.ledger.CurrentContent()
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.streaming = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	if s.audit != nil {
		s.audit.PublishTurn(userMsg)
	}

	s.runExchange(ctx, placeholder.ID, p, history, document, sink)
	return nil
}

// runExchange drives one exchange to a terminal state.
func (s *Session) runExchange(ctx context.Context, placeholderID string, p exchangeParams, history []llm.ChatMessage, document string, sink UpdateSink) {
	acc := NewAccumulator()
	start := time.Now()
	tokenIdx := 0

	onChunk := func(chunk model.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		acc.Ingest(chunk)
		s.applySnapshot(placeholderID, acc)

		if chunk.ThinkingDelta != "" {
			if err := emit(sink, Update{Kind: "thinking", Thinking: &model.ThinkingEvent{
				Delta:     chunk.ThinkingDelta,
				StartedAt: derefTime(acc.ThinkingStartedAt()),
			}}); err != nil {
				return err
			}
		}
		if chunk.AnswerDelta != "" {
			if err := emit(sink, Update{Kind: "token", Token: &model.TokenEvent{
				Token: chunk.AnswerDelta,
				Index: tokenIdx,
			}}); err != nil {
				return err
			}
			tokenIdx++
		}
		return nil
	}

	modelName := p.model
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}

	final, result, err := s.client.StreamChat(ctx, &llm.ChatRequest{
		Messages:       llm.FitContext(history, document, s.cfg.ContextBudget),
		Document:       document,
		Selection:      p.selection,
		Model:          modelName,
		MaxTokens:      s.cfg.MaxTokens,
		ThinkingBudget: s.cfg.ThinkingBudget,
	}, onChunk)
	if err != nil {
		if isCancelled(ctx, err) {
			s.finishCancelled(placeholderID)
			return
		}
		s.log.Error("primary stream failed", zap.Error(err))
		metrics.RecordLLMStream(modelName, "chat", "error", time.Since(start).Seconds(), 0, 0)
		s.finishError(placeholderID, acc, sink)
		return
	}
	metrics.RecordLLMStream(result.Model, "chat", "success", time.Since(start).Seconds(), result.TokensIn, result.TokensOut)

	edit, malformed := ResolveToolCalls(final.ToolCalls)
	if malformed {
		s.log.Warn("malformed edit tool call; treating as a plain answer")
	}

	if edit.Kind == EditNone {
		s.settle(placeholderID, acc.Answer(), acc, result, false, sink)
		return
	}

	// A cancel that lands after the stream finished must still prevent the
	// found tool call from being applied.
	if ctx.Err() != nil {
		s.finishCancelled(placeholderID)
		return
	}

	newContent, stage, applyErr := s.applyEdit(edit)
	if applyErr != nil {
		metrics.RecordEdit(edit.Kind.String(), "not_located")
		metrics.RecordPatchLocate(StageNone.String())
		s.log.Warn("edit snippet not located", zap.Int("snippet_len", len(edit.Snippet)))
		content := joinBlocks(acc.Answer(), notLocatedText)
		s.settle(placeholderID, content, acc, result, false, sink)
		return
	}
	if edit.Kind == EditPartial {
		metrics.RecordPatchLocate(stage.String())
	}
	metrics.RecordEdit(edit.Kind.String(), "applied")

	s.mu.Lock()
	version := s.ledger.Commit(newContent, p.prompt)
	s.mu.Unlock()
	metrics.VersionsCommittedTotal.WithLabelValues("ai_edit").Inc()
	if s.audit != nil {
		s.audit.PublishVersion(version)
	}

	if err := emit(sink, Update{Kind: "edit", Edit: &model.EditEvent{
		Kind:      edit.Kind.String(),
		VersionID: version.ID,
		Stage:     partialStage(edit.Kind, stage),
	}}); err != nil {
		s.settleEdited(placeholderID, acc.Answer(), acc, result, nil)
		return
	}

	base := acc.Answer()
	if base == "" {
		base = toolUsedText
	}
	s.updateContent(placeholderID, base, true)

	// Reflection: narrate the committed edit. Failures (including a cancel
	// arriving mid-narration) are non-fatal; the edit stays applied and the
	// message keeps whatever narration arrived.
	narration := s.reflect(ctx, placeholderID, p, history, base, edit, tokenIdx, sink)
	s.settleEdited(placeholderID, joinBlocks(base, narration), acc, result, sink)
}

// reflect runs the dependent narration stream and returns the narration
// text (possibly empty).
func (s *Session) reflect(ctx context.Context, placeholderID string, p exchangeParams, history []llm.ChatMessage, base string, edit Edit, tokenIdx int, sink UpdateSink) string {
	if ctx.Err() != nil {
		return ""
	}

	messages := append([]llm.ChatMessage{}, history...)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleAssistant), Content: base})

	toolResult := "The whole document was replaced."
	if edit.Kind == EditPartial {
		toolResult = "One passage of the document was replaced in place."
	}

	modelName := p.model
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}

	var narration string
	idx := tokenIdx
	start := time.Now()
	_, err := s.client.StreamReflection(ctx, &llm.ReflectionRequest{
		Messages:   messages,
		ToolResult: toolResult,
		Model:      modelName,
		MaxTokens:  s.cfg.MaxTokens,
	}, func(chunk model.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk.AnswerDelta == "" {
			return nil
		}
		narration += chunk.AnswerDelta
		s.updateContent(placeholderID, joinBlocks(base, narration), false)
		err := emit(sink, Update{Kind: "token", Token: &model.TokenEvent{
			Token: chunk.AnswerDelta,
			Index: idx,
		}})
		idx++
		return err
	})
	if err != nil && !isCancelled(ctx, err) {
		metrics.ReflectionFailuresTotal.Inc()
		metrics.RecordLLMStream(modelName, "reflection", "error", time.Since(start).Seconds(), 0, 0)
		s.log.Warn("reflection stream failed", zap.Error(err))
	} else if err == nil {
		metrics.RecordLLMStream(modelName, "reflection", "success", time.Since(start).Seconds(), 0, 0)
	}
	return narration
}

// applyEdit computes the new document content for a resolved edit.
func (s *Session) applyEdit(edit Edit) (string, MatchStage, error) {
	if edit.Kind == EditFull {
		return edit.FullDocument, StageNone, nil
	}
	s.mu.Lock()
	document := s.ledger.CurrentContent()
	s.mu.Unlock()
	return s.locator.Apply(document, edit.Snippet, edit.Replacement)
}

// applySnapshot copies the accumulator state onto the trailing placeholder.
func (s *Session) applySnapshot(placeholderID string, acc *Accumulator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.findLocked(placeholderID)
	if msg == nil {
		return
	}
	if msg.Status == model.StatusPending {
		msg.Status = model.StatusStreaming
		now := time.Now()
		msg.StreamStarted = &now
	}
	msg.Content = acc.Answer()
	msg.Thinking = acc.Thinking()
	msg.ThinkingStartedAt = acc.ThinkingStartedAt()
}

// updateContent rewrites the trailing placeholder's content (used for the
// tool-used marker and narration appends).
func (s *Session) updateContent(placeholderID, content string, editApplied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.findLocked(placeholderID)
	if msg == nil {
		return
	}
	if content != "" {
		msg.Content = content
	}
	if editApplied {
		msg.EditApplied = true
	}
}

// settle freezes the assistant turn with the given content and publishes it.
func (s *Session) settle(placeholderID, content string, acc *Accumulator, result *llm.StreamResult, editApplied bool, sink UpdateSink) {
	now := time.Now()
	s.mu.Lock()
	msg := s.findLocked(placeholderID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	msg.Content = content
	msg.Thinking = acc.Thinking()
	msg.ThinkingStartedAt = acc.ThinkingStartedAt()
	msg.Status = model.StatusSettled
	msg.StreamEnded = &now
	if editApplied {
		msg.EditApplied = true
	}
	if result != nil {
		msg.Model = &result.Model
		msg.TokensIn = &result.TokensIn
		msg.TokensOut = &result.TokensOut
		msg.LatencyMs = &result.LatencyMs
	}
	settled := *msg
	s.mu.Unlock()

	if s.audit != nil {
		s.audit.PublishTurn(settled)
	}
	_ = emit(sink, Update{Kind: "message_complete", Message: &settled})
}

func (s *Session) settleEdited(placeholderID, content string, acc *Accumulator, result *llm.StreamResult, sink UpdateSink) {
	s.settle(placeholderID, content, acc, result, true, sink)
}

// finishError replaces the placeholder with the fixed apology (not appended,
// to avoid duplicate empty bubbles).
func (s *Session) finishError(placeholderID string, acc *Accumulator, sink UpdateSink) {
	now := time.Now()
	s.mu.Lock()
	msg := s.findLocked(placeholderID)
	if msg != nil {
		msg.Content = apologyText
		msg.Thinking = acc.Thinking()
		msg.ThinkingStartedAt = acc.ThinkingStartedAt()
		msg.Status = model.StatusSettled
		msg.StreamEnded = &now
	}
	s.mu.Unlock()

	if s.audit != nil {
		s.audit.PublishEvent(s.tenantID, s.id, model.AuditExchangeError, "backend unavailable")
	}
	_ = emit(sink, Update{Kind: "error", Err: &model.ErrorEvent{
		Code:    "backend_unavailable",
		Message: apologyText,
	}})
}

// finishCancelled removes the placeholder entirely; a cancelled turn leaves
// only the user's message behind, and is not reported as an error.
func (s *Session) finishCancelled(placeholderID string) {
	s.mu.Lock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == placeholderID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	metrics.ExchangesCancelledTotal.Inc()
	if s.audit != nil {
		s.audit.PublishEvent(s.tenantID, s.id, model.AuditExchangeCancel, "stopped by user")
	}
	s.log.Info("exchange cancelled")
}

// historyLocked converts the settled conversation (excluding the trailing
// placeholder) to the backend wire format. Caller holds s.mu.
func (s *Session) historyLocked(placeholderID string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.ID == placeholderID || msg.Content == "" {
			continue
		}
		out = append(out, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// findLocked returns the message with the given id, scanning from the tail.
// Caller holds s.mu.
func (s *Session) findLocked(id string) *model.Message {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return &s.messages[i]
		}
	}
	return nil
}

func emit(sink UpdateSink, u Update) error {
	if sink == nil {
		return nil
	}
	return sink(u)
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func joinBlocks(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return fmt.Sprintf("%s\n\n%s", a, b)
	}
}

func partialStage(kind EditKind, stage MatchStage) string {
	if kind != EditPartial {
		return ""
	}
	return stage.String()
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
