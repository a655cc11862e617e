package engine

import (
	"time"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// Accumulator folds an ordered sequence of stream chunks into a running
// (answer, thinking, thinkingStartedAt) triple. It is a pure state holder:
// the session applies its snapshots to the trailing assistant message.
type Accumulator struct {
	answer   string
	thinking string

	thinkingStartedAt *time.Time

	now func() time.Time
}

// NewAccumulator creates an accumulator using the wall clock.
func NewAccumulator() *Accumulator {
	return &Accumulator{now: time.Now}
}

// Ingest folds one chunk into the running state. The first non-empty
// thinking delta stamps ThinkingStartedAt; answer and thinking deltas are
// concatenated in arrival order. Interleaved thinking-after-answer deltas
// are tolerated and appended rather than dropped.
func (a *Accumulator) Ingest(chunk model.StreamChunk) {
	if chunk.ThinkingDelta != "" {
		if a.thinkingStartedAt == nil {
			t := a.now()
			a.thinkingStartedAt = &t
		}
		a.thinking += chunk.ThinkingDelta
	}
	if chunk.AnswerDelta != "" {
		a.answer += chunk.AnswerDelta
	}
}

// Answer returns the accumulated answer text.
func (a *Accumulator) Answer() string { return a.answer }

// Thinking returns the accumulated reasoning trace.
func (a *Accumulator) Thinking() string { return a.thinking }

// ThinkingStartedAt returns when the first thinking delta arrived, or nil.
func (a *Accumulator) ThinkingStartedAt() *time.Time { return a.thinkingStartedAt }
