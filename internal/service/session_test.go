package service

import (
	"context"
	"testing"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/llm/llmtest"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

func newTestService() *SessionService {
	return NewSessionService(&llmtest.Client{}, nil, engine.NewLocator(), engine.Config{
		DefaultModel: "scripted",
		MaxTokens:    1024,
	}, logger.NewNop())
}

func TestSessionServiceCreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant-1", "user-1", &model.CreateSessionRequest{Title: "Biology notes"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" || created.TenantID != "tenant-1" || created.Title != "Biology notes" {
		t.Errorf("created = %+v", created)
	}

	eng, err := svc.Get(ctx, "tenant-1", created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if eng.ID() != created.ID {
		t.Errorf("engine id = %q, want %q", eng.ID(), created.ID)
	}

	// Tenant scoping: another tenant cannot see the session.
	if _, err := svc.Get(ctx, "tenant-2", created.ID); err == nil {
		t.Error("cross-tenant Get succeeded")
	}
}

func TestSessionServiceDescribe(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, _ := svc.Create(ctx, "tenant-1", "user-1", &model.CreateSessionRequest{})
	eng, _ := svc.Get(ctx, "tenant-1", created.ID)
	eng.CommitInitial("<p>doc</p>")

	meta, err := svc.Describe(ctx, "tenant-1", created.ID)
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if meta.VersionCount != 1 {
		t.Errorf("VersionCount = %d, want 1", meta.VersionCount)
	}
	if meta.Streaming {
		t.Error("Streaming reported for an idle session")
	}
}

func TestSessionServiceListPagination(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "tenant-1", "user-1", &model.CreateSessionRequest{}); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}
	svc.Create(ctx, "tenant-2", "user-2", &model.CreateSessionRequest{})

	resp, err := svc.List(ctx, "tenant-1", 2, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.Total != 3 || len(resp.Sessions) != 2 || !resp.HasMore {
		t.Errorf("page 1 = total %d, len %d, hasMore %v", resp.Total, len(resp.Sessions), resp.HasMore)
	}

	resp, err = svc.List(ctx, "tenant-1", 2, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.HasMore {
		t.Errorf("page 2 = len %d, hasMore %v", len(resp.Sessions), resp.HasMore)
	}
}

func TestSessionServiceDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, _ := svc.Create(ctx, "tenant-1", "user-1", &model.CreateSessionRequest{})

	if err := svc.Delete(ctx, "tenant-2", created.ID); err == nil {
		t.Error("cross-tenant Delete succeeded")
	}
	if err := svc.Delete(ctx, "tenant-1", created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(ctx, "tenant-1", created.ID); err == nil {
		t.Error("Get succeeded after delete")
	}
}
