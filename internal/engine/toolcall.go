package engine

import (
	"encoding/json"

	"github.com/draftforge-ai/authoring-platform/internal/model"
)

// EditKind discriminates the resolved edit instruction.
type EditKind int

const (
	EditNone EditKind = iota
	EditFull
	EditPartial
)

// String returns the wire name of the edit kind.
func (k EditKind) String() string {
	switch k {
	case EditFull:
		return "full"
	case EditPartial:
		return "partial"
	default:
		return "none"
	}
}

// Edit is the resolved edit instruction from a completed response.
type Edit struct {
	Kind         EditKind
	FullDocument string
	Snippet      string
	Replacement  string
}

type editArgs struct {
	FullDocument     string  `json:"full_document"`
	SnippetToReplace string  `json:"snippet_to_replace"`
	Replacement      *string `json:"replacement"`
}

// ResolveToolCalls inspects a final chunk's tool calls and classifies the
// first recognized edit instruction. Additional calls are ignored; there is
// no multi-edit batching in one turn. The second return is true when a
// recognized call was present but matched neither argument shape; the
// caller treats that as no edit, with a warning.
func ResolveToolCalls(calls []model.ToolCall) (Edit, bool) {
	for _, call := range calls {
		if call.Name != model.EditToolName {
			continue
		}

		var args editArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return Edit{}, true
		}

		if args.FullDocument != "" {
			return Edit{Kind: EditFull, FullDocument: args.FullDocument}, false
		}
		if args.SnippetToReplace != "" {
			replacement := ""
			if args.Replacement != nil {
				replacement = *args.Replacement
			}
			return Edit{
				Kind:        EditPartial,
				Snippet:     args.SnippetToReplace,
				Replacement: replacement,
			}, false
		}

		// Call present but neither shape: no-op with warning, not fatal.
		return Edit{}, true
	}
	return Edit{}, false
}
