package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/llm/llmtest"
	"github.com/draftforge-ai/authoring-platform/internal/middleware"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/internal/service"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

// withTenant injects the auth context the handlers expect, standing in for
// the JWT middleware.
func withTenant(tenantID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, middleware.UserIDKey, "user-1")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newVersionTestServer(t *testing.T) (http.Handler, string, *engine.Session) {
	t.Helper()

	log := logger.NewNop()
	svc := service.NewSessionService(&llmtest.Client{}, nil, engine.NewLocator(), engine.Config{}, log)
	created, err := svc.Create(context.Background(), "tenant-1", "user-1", &model.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	session, _ := svc.Get(context.Background(), "tenant-1", created.ID)

	h := NewVersionHandler(svc, log)
	r := chi.NewRouter()
	r.Use(withTenant("tenant-1"))
	r.Route("/sessions/{sessionID}/versions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Save)
		r.Delete("/preview", h.ExitPreview)
		r.Post("/{versionID}/preview", h.Preview)
		r.Post("/{versionID}/revert", h.Revert)
		r.Delete("/{versionID}", h.Delete)
	})
	return r, created.ID, session
}

func TestVersionHandlerListAndSave(t *testing.T) {
	r, sessionID, session := newVersionTestServer(t)
	session.CommitInitial("<p>doc</p>")

	// Duplicate content is rejected with a conflict.
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions", strings.NewReader(`{"content":"<p>doc</p>"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate save status = %d, want 409", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions", strings.NewReader(`{"content":"<p>doc v2</p>"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, want 201", rec.Code)
	}
	var saved model.DocumentVersion
	json.NewDecoder(rec.Body).Decode(&saved)
	if saved.Reason != model.ReasonManualSave {
		t.Errorf("Reason = %q, want %q", saved.Reason, model.ReasonManualSave)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID+"/versions", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list model.ListVersionsResponse
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Versions) != 2 || list.CurrentID != saved.ID {
		t.Errorf("list = %d versions, current %q", len(list.Versions), list.CurrentID)
	}
}

func TestVersionHandlerPreviewRevertDelete(t *testing.T) {
	r, sessionID, session := newVersionTestServer(t)
	v1 := session.CommitInitial("<p>one</p>")
	session.SaveVersion("<p>two</p>")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions/"+v1.ID+"/preview", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d", rec.Code)
	}
	if doc := session.Document(); !doc.Preview || doc.Content != "<p>one</p>" {
		t.Errorf("document during preview = %+v", doc)
	}

	req = httptest.NewRequest(http.MethodDelete, "/sessions/"+sessionID+"/versions/preview", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("exit preview status = %d", rec.Code)
	}
	if doc := session.Document(); doc.Preview || doc.Content != "<p>two</p>" {
		t.Errorf("document after exit = %+v", doc)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions/"+v1.ID+"/revert", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("revert status = %d", rec.Code)
	}
	if session.VersionCount() != 1 {
		t.Errorf("VersionCount() = %d after revert, want 1", session.VersionCount())
	}

	req = httptest.NewRequest(http.MethodDelete, "/sessions/"+sessionID+"/versions/"+v1.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var resp map[string]bool
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp["empty"] {
		t.Errorf("delete of last version response = %v, want empty=true", resp)
	}
}

func TestVersionHandlerUnknownIDs(t *testing.T) {
	r, sessionID, session := newVersionTestServer(t)
	session.CommitInitial("<p>doc</p>")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions/not-a-uuid/revert", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", rec.Code)
	}

	// Well-formed but unknown id.
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/versions/0198c6f2-0000-7000-8000-000000000000/revert", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}
