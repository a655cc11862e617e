package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/middleware"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/internal/service"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

// VersionHandler handles the version ledger endpoints.
type VersionHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewVersionHandler creates a version handler.
func NewVersionHandler(sessions *service.SessionService, log *logger.Logger) *VersionHandler {
	return &VersionHandler{sessions: sessions, logger: log}
}

// List handles GET /sessions/{sessionID}/versions.
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	versions, currentID, previewID := session.Versions()
	writeJSON(w, http.StatusOK, &model.ListVersionsResponse{
		Versions:  versions,
		CurrentID: currentID,
		PreviewID: previewID,
	})
}

// Save handles POST /sessions/{sessionID}/versions. Saving content identical
// to the current version is rejected.
func (h *VersionHandler) Save(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SaveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	version, err := session.SaveVersion(req.Content)
	if err != nil {
		if errors.Is(err, engine.ErrNoChangesToSave) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save version")
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

// Preview handles POST /sessions/{sessionID}/versions/{versionID}/preview.
// Previewing does not mutate the ledger.
func (h *VersionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	session, versionID, ok := h.sessionVersion(w, r)
	if !ok {
		return
	}
	version, found := session.PreviewVersion(versionID)
	if !found {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// ExitPreview handles DELETE /sessions/{sessionID}/versions/preview.
func (h *VersionHandler) ExitPreview(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.ExitPreview()
	writeJSON(w, http.StatusOK, session.Document())
}

// Revert handles POST /sessions/{sessionID}/versions/{versionID}/revert.
// Versions after the target are discarded.
func (h *VersionHandler) Revert(w http.ResponseWriter, r *http.Request) {
	session, versionID, ok := h.sessionVersion(w, r)
	if !ok {
		return
	}
	version, found := session.RevertVersion(versionID)
	if !found {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// Delete handles DELETE /sessions/{sessionID}/versions/{versionID}. The
// response carries the fallback version that became current, or empty=true
// when the last version was removed.
func (h *VersionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, versionID, ok := h.sessionVersion(w, r)
	if !ok {
		return
	}
	fallback, deleted, empty := session.DeleteVersion(versionID)
	if !deleted {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	if empty {
		writeJSON(w, http.StatusOK, map[string]bool{"empty": true})
		return
	}
	writeJSON(w, http.StatusOK, fallback)
}

func (h *VersionHandler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
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

func (h *VersionHandler) sessionVersion(w http.ResponseWriter, r *http.Request) (*engine.Session, string, bool) {
	session, ok := h.session(w, r)
	if !ok {
		return nil, "", false
	}
	versionID := chi.URLParam(r, "versionID")
	if err := middleware.ValidateVersionID(versionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, "", false
	}
	return session, versionID, true
}
