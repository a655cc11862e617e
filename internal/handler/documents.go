package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/middleware"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/internal/service"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

// DocumentHandler handles document generation and reads.
type DocumentHandler struct {
	sessions *service.SessionService
	generate *service.GenerateService
	logger   *logger.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(sessions *service.SessionService, generate *service.GenerateService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{sessions: sessions, generate: generate, logger: log}
}

// Generate handles POST /sessions/{sessionID}/document/generate. The
// response streams generation fragments over SSE and ends with the
// committed version in a document event.
func (h *DocumentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.GenerateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSourceText(req.SourceText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sse.close()
	stopHeartbeat := sse.heartbeat(r.Context())
	defer stopHeartbeat()

	version, err := h.generate.Generate(r.Context(), session, &req, sse.sink())
	if err != nil {
		h.logger.Error("document generation failed", zap.Error(err))
		sse.send("error", &model.ErrorEvent{
			Code:    "generation_failed",
			Message: "document generation failed",
		})
		sse.send("done", map[string]bool{"done": true})
		return
	}

	sse.send("document", version)
	sse.send("done", map[string]bool{"done": true})
}

// Get handles GET /sessions/{sessionID}/document.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Document())
}

func (h *DocumentHandler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
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
