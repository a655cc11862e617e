package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
	"github.com/draftforge-ai/authoring-platform/pkg/metrics"
)

const defaultGenerationPrompt = "Write a well-structured study document in markdown " +
	"summarizing the source material: headings, short paragraphs, and lists where helpful."

// GenerateService produces the initial working document: it streams a
// markdown draft from the backend, renders it to HTML, and commits it as
// the session's first version.
type GenerateService struct {
	llmClient llm.Client
	logger    *logger.Logger
	maxTokens int
}

// NewGenerateService creates a generate service.
func NewGenerateService(llmClient llm.Client, maxTokens int, log *logger.Logger) *GenerateService {
	return &GenerateService{
		llmClient: llmClient,
		logger:    log,
		maxTokens: maxTokens,
	}
}

// Generate runs the generation stream for a session, forwarding fragments
// to sink, and commits the rendered document. Returns the committed version.
func (g *GenerateService) Generate(ctx context.Context, session *engine.Session, req *model.GenerateDocumentRequest, sink engine.UpdateSink) (*model.DocumentVersion, error) {
	source := strings.TrimSpace(req.SourceText)
	if source == "" {
		return nil, errors.New("source text is required")
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultGenerationPrompt
	}

	start := time.Now()
	var markdown string
	tokenIdx := 0

	_, result, err := g.llmClient.StreamChat(ctx, &llm.ChatRequest{
		Messages: []llm.ChatMessage{{
			Role:    string(model.RoleUser),
			Content: fmt.Sprintf("%s\n\nSource material:\n<source>\n%s\n</source>", prompt, source),
		}},
		Model:     req.Model,
		MaxTokens: g.maxTokens,
	}, func(chunk model.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk.AnswerDelta == "" {
			return nil
		}
		markdown += chunk.AnswerDelta
		if sink == nil {
			return nil
		}
		err := sink(engine.Update{Kind: "token", Token: &model.TokenEvent{
			Token: chunk.AnswerDelta,
			Index: tokenIdx,
		}})
		tokenIdx++
		return err
	})
	if err != nil {
		metrics.RecordLLMStream(req.Model, "generation", "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("generation stream failed: %w", err)
	}
	metrics.RecordLLMStream(result.Model, "generation", "success", time.Since(start).Seconds(), result.TokensIn, result.TokensOut)

	html, err := renderHTML(markdown)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}

	version := session.CommitInitial(html)
	g.logger.WithSession(session.TenantID(), session.ID()).Info("document generated",
		zap.Int("markdown_bytes", len(markdown)),
		zap.String("version_id", version.ID),
	)
	return &version, nil
}

// renderHTML converts the generated markdown to the HTML working document.
func renderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
