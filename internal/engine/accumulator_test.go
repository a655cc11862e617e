package engine

import (
	"testing"
	"time"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

func TestAccumulatorSeparatesStreams(t *testing.T) {
	a := NewAccumulator()

	a.Ingest(model.StreamChunk{ThinkingDelta: "Let me "})
	a.Ingest(model.StreamChunk{ThinkingDelta: "think."})
	a.Ingest(model.StreamChunk{AnswerDelta: "Here "})
	a.Ingest(model.StreamChunk{AnswerDelta: "you go."})

	if a.Thinking() != "Let me think." {
		t.Errorf("Thinking() = %q", a.Thinking())
	}
	if a.Answer() != "Here you go." {
		t.Errorf("Answer() = %q", a.Answer())
	}
}

func TestAccumulatorThinkingStartedAt(t *testing.T) {
	a := NewAccumulator()
	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	a.now = func() time.Time {
		calls++
		return t1.Add(time.Duration(calls-1) * time.Second)
	}

	if a.ThinkingStartedAt() != nil {
		t.Fatal("ThinkingStartedAt set before any thinking delta")
	}

	a.Ingest(model.StreamChunk{AnswerDelta: "answer first"})
	if a.ThinkingStartedAt() != nil {
		t.Fatal("answer delta stamped ThinkingStartedAt")
	}

	a.Ingest(model.StreamChunk{ThinkingDelta: "one"})
	a.Ingest(model.StreamChunk{ThinkingDelta: "two"})

	got := a.ThinkingStartedAt()
	if got == nil || !got.Equal(t1) {
		t.Errorf("ThinkingStartedAt() = %v, want first-delta time %v", got, t1)
	}
}

func TestAccumulatorToleratesInterleaving(t *testing.T) {
	a := NewAccumulator()

	a.Ingest(model.StreamChunk{ThinkingDelta: "t1 "})
	a.Ingest(model.StreamChunk{AnswerDelta: "a1 "})
	a.Ingest(model.StreamChunk{ThinkingDelta: "t2", AnswerDelta: "a2"})
	a.Ingest(model.StreamChunk{Final: true})

	if a.Thinking() != "t1 t2" {
		t.Errorf("Thinking() = %q, want %q", a.Thinking(), "t1 t2")
	}
	if a.Answer() != "a1 a2" {
		t.Errorf("Answer() = %q, want %q", a.Answer(), "a1 a2")
	}
}
