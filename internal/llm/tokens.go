package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// estimateTokens counts tokens with the cl100k_base vocabulary. Counts are
// used for context budgeting and accounting only, so the byte-length
// fallback on codec failure is acceptable.
func estimateTokens(text string) int {
	codecOnce.Do(func() {
		codec, _ = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codec != nil {
		if n, err := codec.Count(text); err == nil {
			return n
		}
	}
	return len(text) / 4
}

// FitContext trims the oldest turns from a conversation until it, together
// with the document context, fits the token budget. The newest message is
// always kept; trimming affects only what is sent to the backend, never the
// session's stored history.
func FitContext(messages []ChatMessage, document string, budget int) []ChatMessage {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	total := estimateTokens(document)
	counts := make([]int, len(messages))
	for i, msg := range messages {
		counts[i] = estimateTokens(msg.Content)
		total += counts[i]
	}

	start := 0
	for total > budget && start < len(messages)-1 {
		total -= counts[start]
		start++
	}

	return messages[start:]
}
