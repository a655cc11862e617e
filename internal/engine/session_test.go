package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/llm/llmtest"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
)

func newTestSession(c llm.Client) *Session {
	return NewSession("session-1", "tenant-1", c, NewLocator(), nil, logger.NewNop(), Config{
		DefaultModel: "scripted",
		MaxTokens:    1024,
	})
}

func collectUpdates(dst *[]Update) UpdateSink {
	return func(u Update) error {
		*dst = append(*dst, u)
		return nil
	}
}

func updateKinds(updates []Update) []string {
	kinds := make([]string, len(updates))
	for i, u := range updates {
		kinds[i] = u.Kind
	}
	return kinds
}

func partialEditCall(snippet, replacement string) model.ToolCall {
	args, _ := json.Marshal(map[string]string{
		"snippet_to_replace": snippet,
		"replacement":        replacement,
	})
	return model.ToolCall{Name: model.EditToolName, Arguments: args}
}

func TestSendPlainAnswer(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{ThinkingDelta: "User wants a greeting. "},
			{ThinkingDelta: "Short answer is fine."},
			{AnswerDelta: "Hello "},
			{AnswerDelta: "there."},
		},
	}
	s := newTestSession(client)

	var updates []Update
	err := s.Send(context.Background(), &model.SendMessageRequest{Content: "say hi"}, collectUpdates(&updates))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "say hi" {
		t.Errorf("user turn = %+v", msgs[0])
	}
	got := msgs[1]
	if got.Role != model.RoleAssistant || got.Status != model.StatusSettled {
		t.Errorf("assistant turn = role %v status %v", got.Role, got.Status)
	}
	if got.Content != "Hello there." {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Thinking != "User wants a greeting. Short answer is fine." {
		t.Errorf("Thinking = %q", got.Thinking)
	}
	if got.ThinkingStartedAt == nil {
		t.Error("ThinkingStartedAt not stamped")
	}
	if got.EditApplied {
		t.Error("EditApplied set without a tool call")
	}

	kinds := updateKinds(updates)
	if kinds[len(kinds)-1] != "message_complete" {
		t.Errorf("last update = %q, want message_complete", kinds[len(kinds)-1])
	}
	if s.Streaming() {
		t.Error("Streaming() still true after Send returned")
	}
}

func TestSendEmptyPrompt(t *testing.T) {
	s := newTestSession(&llmtest.Client{})
	err := s.Send(context.Background(), &model.SendMessageRequest{Content: "   \n"}, nil)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("err = %v, want ErrEmptyPrompt", err)
	}
	if s.MessageCount() != 0 {
		t.Errorf("MessageCount() = %d after rejected send", s.MessageCount())
	}
}

func TestSendPartialEditCommitsVersion(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "Swapping the animal."},
			{Final: true, ToolCalls: []model.ToolCall{partialEditCall("The cat sat.", "The dog stood.")}},
		},
		ReflectionChunks: []model.StreamChunk{
			{AnswerDelta: "The sentence now features a dog."},
		},
	}
	s := newTestSession(client)
	s.CommitInitial("<p>The cat sat.</p>")

	var updates []Update
	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "use a dog instead"}, collectUpdates(&updates)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	versions, currentID, _ := s.Versions()
	if len(versions) != 2 {
		t.Fatalf("len(versions) = %d, want 2", len(versions))
	}
	committed := versions[1]
	if committed.ID != currentID {
		t.Errorf("currentID = %q, want committed %q", currentID, committed.ID)
	}
	if committed.Content != "<p>The dog stood.</p>" {
		t.Errorf("committed content = %q", committed.Content)
	}
	if committed.Reason != "use a dog instead" {
		t.Errorf("Reason = %q, want the triggering prompt", committed.Reason)
	}

	msg := s.Messages()[1]
	if !msg.EditApplied {
		t.Error("EditApplied not set")
	}
	want := "Swapping the animal.\n\nThe sentence now features a dog."
	if msg.Content != want {
		t.Errorf("Content = %q, want %q", msg.Content, want)
	}

	var edit *model.EditEvent
	for _, u := range updates {
		if u.Kind == "edit" {
			edit = u.Edit
		}
	}
	if edit == nil {
		t.Fatal("no edit update emitted")
	}
	if edit.Kind != "partial" || edit.Stage != "exact" || edit.VersionID != committed.ID {
		t.Errorf("edit event = %+v", edit)
	}
}

func TestSendFullReplace(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"full_document": "<p>fresh</p>"})
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{Final: true, ToolCalls: []model.ToolCall{{Name: model.EditToolName, Arguments: args}}},
		},
	}
	s := newTestSession(client)

	// Full replacement needs no existing document and never fails location.
	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "write it"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	versions, _, _ := s.Versions()
	if len(versions) != 1 || versions[0].Content != "<p>fresh</p>" {
		t.Fatalf("versions = %+v", versions)
	}

	msg := s.Messages()[1]
	if !msg.EditApplied {
		t.Error("EditApplied not set")
	}
	// No answer text and no narration: the fixed marker stands in.
	if msg.Content != toolUsedText {
		t.Errorf("Content = %q, want %q", msg.Content, toolUsedText)
	}
}

func TestSendEditNotLocated(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "Changing the passage."},
			{Final: true, ToolCalls: []model.ToolCall{partialEditCall("The cat sat.", "The dog stood.")}},
		},
	}
	s := newTestSession(client)
	s.CommitInitial("<p>Entirely different text.</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "edit it"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	versions, _, _ := s.Versions()
	if len(versions) != 1 {
		t.Errorf("len(versions) = %d, refusal must not commit", len(versions))
	}

	msg := s.Messages()[1]
	if msg.EditApplied {
		t.Error("EditApplied set on a refused edit")
	}
	if !strings.Contains(msg.Content, notLocatedText) {
		t.Errorf("Content = %q, want the refusal text appended", msg.Content)
	}
	if msg.Status != model.StatusSettled {
		t.Errorf("Status = %v, want settled", msg.Status)
	}
	if len(client.ReflectionRequests) != 0 {
		t.Error("reflection ran for a refused edit")
	}
}

func TestSendBackendError(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{{AnswerDelta: "partial "}},
		ChatErr:    errors.New("upstream exploded"),
	}
	s := newTestSession(client)

	var updates []Update
	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "hi"}, collectUpdates(&updates)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	msg := s.Messages()[1]
	if msg.Content != apologyText {
		t.Errorf("Content = %q, want the apology", msg.Content)
	}
	if msg.Status != model.StatusSettled {
		t.Errorf("Status = %v, want settled", msg.Status)
	}

	kinds := updateKinds(updates)
	if kinds[len(kinds)-1] != "error" {
		t.Errorf("last update = %q, want error", kinds[len(kinds)-1])
	}
}

func TestStopDuringStream(t *testing.T) {
	var s *Session
	client := &llmtest.Client{}
	client.ChatFunc = func(ctx context.Context, req *llm.ChatRequest, onChunk llm.ChunkHandler) (*model.StreamChunk, *llm.StreamResult, error) {
		if err := onChunk(model.StreamChunk{AnswerDelta: "partial"}); err != nil {
			return nil, nil, err
		}
		s.Stop()
		return nil, nil, ctx.Err()
	}
	s = newTestSession(client)

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "hi"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	// A cancelled turn leaves only the user's message behind.
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	if msgs[0].Role != model.RoleUser {
		t.Errorf("surviving message role = %v", msgs[0].Role)
	}
	if s.Streaming() {
		t.Error("Streaming() still true after cancel")
	}
}

func TestCancelAfterStreamSkipsEdit(t *testing.T) {
	var s *Session
	client := &llmtest.Client{}
	client.ChatFunc = func(ctx context.Context, req *llm.ChatRequest, onChunk llm.ChunkHandler) (*model.StreamChunk, *llm.StreamResult, error) {
		final := model.StreamChunk{Final: true, ToolCalls: []model.ToolCall{partialEditCall("cat", "dog")}}
		// Stop lands between stream completion and tool-call application.
		s.Stop()
		return &final, &llm.StreamResult{Model: "scripted"}, nil
	}
	s = newTestSession(client)
	s.CommitInitial("<p>cat</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "edit"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	versions, _, _ := s.Versions()
	if len(versions) != 1 {
		t.Errorf("len(versions) = %d, cancelled exchange must not commit", len(versions))
	}
	if len(s.Messages()) != 1 {
		t.Errorf("len(messages) = %d, want 1", len(s.Messages()))
	}
}

func TestEditMessage(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{{AnswerDelta: "answer"}},
	}
	s := newTestSession(client)

	for _, prompt := range []string{"first prompt", "second prompt"} {
		if err := s.Send(context.Background(), &model.SendMessageRequest{Content: prompt}, nil); err != nil {
			t.Fatalf("Send(%q) returned error: %v", prompt, err)
		}
	}
	if s.MessageCount() != 4 {
		t.Fatalf("MessageCount() = %d, want 4", s.MessageCount())
	}

	// Targeting an assistant turn is rejected.
	err := s.EditMessage(context.Background(), 1, &model.EditMessageRequest{Content: "revised"}, nil)
	if !errors.Is(err, ErrBadTurnIndex) {
		t.Fatalf("EditMessage(assistant index) err = %v, want ErrBadTurnIndex", err)
	}

	if err := s.EditMessage(context.Background(), 2, &model.EditMessageRequest{Content: "revised"}, nil); err != nil {
		t.Fatalf("EditMessage returned error: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len(messages) = %d after edit, want 4", len(msgs))
	}
	if msgs[0].Content != "first prompt" || msgs[2].Content != "revised" {
		t.Errorf("history = [%q, %q, %q, %q]", msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content)
	}
	if msgs[3].Role != model.RoleAssistant || msgs[3].Status != model.StatusSettled {
		t.Errorf("trailing turn = %+v", msgs[3])
	}
}

func TestRetryUserMessage(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{{AnswerDelta: "answer"}},
	}
	s := newTestSession(client)

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "the prompt"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if err := s.RetryUserMessage(context.Background(), 0, nil); err != nil {
		t.Fatalf("RetryUserMessage returned error: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "the prompt" {
		t.Errorf("resent content = %q", msgs[0].Content)
	}

	last := client.ChatRequests[len(client.ChatRequests)-1]
	sent := last.Messages[len(last.Messages)-1]
	if sent.Content != "the prompt" {
		t.Errorf("backend got %q, want the original prompt", sent.Content)
	}
}

func TestRetryAssistantMessage(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{{AnswerDelta: "answer"}},
	}
	s := newTestSession(client)

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "the prompt"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if err := s.RetryAssistantMessage(context.Background(), 0, nil); !errors.Is(err, ErrBadTurnIndex) {
		t.Fatalf("RetryAssistantMessage(user index) err = %v, want ErrBadTurnIndex", err)
	}

	if err := s.RetryAssistantMessage(context.Background(), 1, nil); err != nil {
		t.Fatalf("RetryAssistantMessage returned error: %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Content != "the prompt" {
		t.Errorf("history after regenerate = %+v", msgs)
	}
}

func TestOperationsRejectedWhileStreaming(t *testing.T) {
	var s *Session
	var resetErr, sendErr error
	client := &llmtest.Client{}
	client.ChatFunc = func(ctx context.Context, req *llm.ChatRequest, onChunk llm.ChunkHandler) (*model.StreamChunk, *llm.StreamResult, error) {
		resetErr = s.Reset()
		sendErr = s.Send(ctx, &model.SendMessageRequest{Content: "again"}, nil)
		f := model.StreamChunk{Final: true}
		return &f, &llm.StreamResult{Model: "scripted"}, nil
	}
	s = newTestSession(client)

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "hi"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !errors.Is(resetErr, ErrExchangeInFlight) {
		t.Errorf("Reset during stream err = %v, want ErrExchangeInFlight", resetErr)
	}
	if !errors.Is(sendErr, ErrExchangeInFlight) {
		t.Errorf("Send during stream err = %v, want ErrExchangeInFlight", sendErr)
	}
}

func TestReset(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{{AnswerDelta: "answer"}},
	}
	s := newTestSession(client)
	s.CommitInitial("<p>doc</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "hi"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if s.MessageCount() != 0 {
		t.Errorf("MessageCount() = %d after reset", s.MessageCount())
	}
	// The ledger survives a conversation reset.
	if s.VersionCount() != 1 {
		t.Errorf("VersionCount() = %d after reset, want 1", s.VersionCount())
	}
}

func TestReflectionFailureKeepsEdit(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "Editing now."},
			{Final: true, ToolCalls: []model.ToolCall{partialEditCall("cat", "dog")}},
		},
		ReflectionErr: errors.New("narration backend down"),
	}
	s := newTestSession(client)
	s.CommitInitial("<p>cat</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "edit"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	versions, _, _ := s.Versions()
	if len(versions) != 2 || versions[1].Content != "<p>dog</p>" {
		t.Fatalf("versions = %+v, edit must survive a failed narration", versions)
	}

	msg := s.Messages()[1]
	if !msg.EditApplied || msg.Status != model.StatusSettled {
		t.Errorf("assistant turn = %+v", msg)
	}
	if msg.Content != "Editing now." {
		t.Errorf("Content = %q, want the primary answer alone", msg.Content)
	}
}

func TestDocumentFollowsPreviewPointer(t *testing.T) {
	s := newTestSession(&llmtest.Client{})
	v1 := s.CommitInitial("<p>one</p>")
	if _, err := s.SaveVersion("<p>two</p>"); err != nil {
		t.Fatalf("SaveVersion returned error: %v", err)
	}

	doc := s.Document()
	if doc.Preview || doc.Content != "<p>two</p>" {
		t.Errorf("document without preview = %+v", doc)
	}

	if _, ok := s.PreviewVersion(v1.ID); !ok {
		t.Fatal("PreviewVersion failed")
	}
	doc = s.Document()
	if !doc.Preview || doc.Content != "<p>one</p>" || doc.VersionID != v1.ID {
		t.Errorf("document during preview = %+v", doc)
	}

	// Reading the document is a pure lookup: repeated reads leave the
	// pointers exactly as the preview operation set them.
	s.Document()
	if _, currentID, previewID := s.Versions(); previewID != v1.ID || currentID == v1.ID {
		t.Errorf("pointers after reads = current %q, preview %q", currentID, previewID)
	}
}

func TestStopDuringReflectionKeepsCommit(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "Editing now."},
			{Final: true, ToolCalls: []model.ToolCall{partialEditCall("cat", "dog")}},
		},
		ReflectionChunks: []model.StreamChunk{
			{AnswerDelta: "The passage now "},
			{AnswerDelta: "features a dog."},
		},
	}

	// Stop on the first narration token: the commit has already happened,
	// so only the rest of the narration is skipped.
	var s *Session
	sawEdit := false
	stopped := false
	sink := func(u Update) error {
		switch u.Kind {
		case "edit":
			sawEdit = true
		case "token":
			if sawEdit && !stopped {
				stopped = true
				s.Stop()
			}
		}
		return nil
	}

	s = newTestSession(client)
	s.CommitInitial("<p>cat</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "use a dog"}, sink); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !stopped {
		t.Fatal("narration never streamed, the scenario did not run")
	}

	versions, currentID, _ := s.Versions()
	if len(versions) != 2 || versions[1].Content != "<p>dog</p>" {
		t.Fatalf("versions = %+v, committed edit must survive the stop", versions)
	}
	if currentID != versions[1].ID {
		t.Errorf("currentID = %q, want the committed version", currentID)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	msg := msgs[1]
	if msg.Status != model.StatusSettled || !msg.EditApplied {
		t.Errorf("assistant turn = status %v, editApplied %v", msg.Status, msg.EditApplied)
	}
	// The turn keeps the narration that arrived before the stop.
	want := "Editing now.\n\nThe passage now "
	if msg.Content != want {
		t.Errorf("Content = %q, want %q", msg.Content, want)
	}
}

func TestMalformedToolCallIsPlainAnswer(t *testing.T) {
	client := &llmtest.Client{
		ChatChunks: []model.StreamChunk{
			{AnswerDelta: "I tried."},
			{Final: true, ToolCalls: []model.ToolCall{{Name: model.EditToolName, Arguments: json.RawMessage(`{broken`)}}},
		},
	}
	s := newTestSession(client)
	s.CommitInitial("<p>doc</p>")

	if err := s.Send(context.Background(), &model.SendMessageRequest{Content: "edit"}, nil); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if s.VersionCount() != 1 {
		t.Errorf("VersionCount() = %d, malformed call must not commit", s.VersionCount())
	}
	msg := s.Messages()[1]
	if msg.Content != "I tried." || msg.EditApplied {
		t.Errorf("assistant turn = %+v", msg)
	}
}
