package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/middleware"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/internal/service"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

// ChatHandler handles the conversational endpoints of a session: streaming
// sends, message edit and retry, stop, reset, and history reads.
type ChatHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(sessions *service.SessionService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, logger: log}
}

// Send handles POST /sessions/{sessionID}/chat. The response is an SSE
// stream of thinking, token, edit, message_complete, and error events,
// terminated by a done event.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidatePrompt(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.Streaming() {
		writeError(w, http.StatusConflict, engine.ErrExchangeInFlight.Error())
		return
	}

	h.stream(w, r, func(sink engine.UpdateSink) error {
		return session.Send(r.Context(), &req, sink)
	})
}

// EditMessage handles PUT /sessions/{sessionID}/messages/{index}. History
// after the edited user message is discarded and the exchange restreams.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := h.messageIndex(w, r)
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidatePrompt(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.Streaming() {
		writeError(w, http.StatusConflict, engine.ErrExchangeInFlight.Error())
		return
	}

	h.stream(w, r, func(sink engine.UpdateSink) error {
		return session.EditMessage(r.Context(), index, &req, sink)
	})
}

// RetryMessage handles POST /sessions/{sessionID}/messages/{index}/retry.
// A user index resends that message; an assistant index regenerates it from
// the nearest preceding user message.
func (h *ChatHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := h.messageIndex(w, r)
	if !ok {
		return
	}
	if session.Streaming() {
		writeError(w, http.StatusConflict, engine.ErrExchangeInFlight.Error())
		return
	}

	role := model.RoleUser
	for i, msg := range session.Messages() {
		if i == index {
			role = msg.Role
			break
		}
	}

	h.stream(w, r, func(sink engine.UpdateSink) error {
		if role == model.RoleAssistant {
			return session.RetryAssistantMessage(r.Context(), index, sink)
		}
		return session.RetryUserMessage(r.Context(), index, sink)
	})
}

// Stop handles POST /sessions/{sessionID}/chat/stop.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// Reset handles POST /sessions/{sessionID}/chat/reset.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ListMessages handles GET /sessions/{sessionID}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages:  session.Messages(),
		Streaming: session.Streaming(),
	})
}

// stream runs fn over a fresh SSE connection. Precondition failures that
// race past the pre-flight check surface as error events, since the SSE
// handshake has already been written.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, fn func(engine.UpdateSink) error) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sse.close()
	stopHeartbeat := sse.heartbeat(r.Context())
	defer stopHeartbeat()

	if err := fn(sse.sink()); err != nil {
		code := "bad_request"
		switch {
		case errors.Is(err, engine.ErrExchangeInFlight):
			code = "exchange_in_flight"
		case errors.Is(err, engine.ErrBadTurnIndex):
			code = "bad_turn_index"
		case errors.Is(err, engine.ErrEmptyPrompt):
			code = "empty_prompt"
		default:
			h.logger.Error("exchange rejected", zap.Error(err))
		}
		sse.send("error", &model.ErrorEvent{Code: code, Message: err.Error()})
	}
	sse.send("done", map[string]bool{"done": true})
}

func (h *ChatHandler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	session, err := h.sessions.Get(r.Context(), middleware.GetTenantID(r.Context()), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func (h *ChatHandler) messageIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid message index")
		return 0, false
	}
	return index, true
}
