package service

import (
	"context"
	"strings"
	"testing"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/llm/llmtest"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

func TestGenerateCommitsRenderedDocument(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "# Photosynthesis\n\n"},
			{AnswerDelta: "Plants convert light into energy."},
		},
	}
	svc := NewGenerateService(client, 1024, logger.NewNop())
	session := engine.NewSession("session-1", "tenant-1", client, engine.NewLocator(), nil, logger.NewNop(), engine.Config{})

	var tokens int
	version, err := svc.Generate(context.Background(), session, &model.GenerateDocumentRequest{
		SourceText: "photosynthesis lecture transcript",
	}, func(u engine.Update) error {
		if u.Kind == "token" {
			tokens++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if !strings.Contains(version.Content, "<h1>Photosynthesis</h1>") {
		t.Errorf("rendered content = %q, want markdown converted to markup", version.Content)
	}
	if version.Reason != model.ReasonInitialGeneration {
		t.Errorf("Reason = %q, want %q", version.Reason, model.ReasonInitialGeneration)
	}
	if session.VersionCount() != 1 {
		t.Errorf("VersionCount() = %d, want 1", session.VersionCount())
	}
	if tokens != 2 {
		t.Errorf("forwarded %d token updates, want 2", tokens)
	}

	// The generation request carries the source material, not a conversation.
	req := client.ChatRequests[0]
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "photosynthesis lecture transcript") {
		t.Errorf("backend request = %+v", req.Messages)
	}
}

func TestGenerateRequiresSource(t *testing.T) {
	svc := NewGenerateService(&llmtest.Client{}, 1024, logger.NewNop())
	session := engine.NewSession("session-1", "tenant-1", &llmtest.Client{}, engine.NewLocator(), nil, logger.NewNop(), engine.Config{})

	if _, err := svc.Generate(context.Background(), session, &model.GenerateDocumentRequest{SourceText: "  "}, nil); err == nil {
		t.Error("Generate accepted empty source text")
	}
}
