package llm

import (
	"fmt"
	"strings"
)

const systemPromptBase = `You are a writing assistant embedded in a document authoring tool.
You answer questions about the working document and, when the user asks for a
change, you apply it with the edit_document tool instead of pasting the result
into your reply.

Rules for edits:
- For a localized change, call edit_document with snippet_to_replace set to the
  exact text you are changing (copy it verbatim from the document, including
  markup) and replacement set to the new text.
- For a rewrite of the whole document, call edit_document with full_document.
- Make at most one edit_document call per reply.
- If no change is requested, answer normally without calling the tool.`

const editToolDescription = `Apply an edit to the working document. Provide either
full_document (replace the entire document) or snippet_to_replace plus
replacement (replace one passage in place). Exactly one of the two forms.`

// editToolSchema is the JSON schema properties block for the edit tool,
// shared by both provider adapters.
var editToolSchema = map[string]any{
	"full_document": map[string]any{
		"type":        "string",
		"description": "Complete replacement markup for the whole document.",
	},
	"snippet_to_replace": map[string]any{
		"type":        "string",
		"description": "Verbatim passage from the current document to replace.",
	},
	"replacement": map[string]any{
		"type":        "string",
		"description": "New text for the replaced passage.",
	},
}

// buildSystemPrompt assembles the system prompt with document and selection
// context appended as delimited blocks.
func buildSystemPrompt(document, selection string) string {
	var b strings.Builder
	b.WriteString(systemPromptBase)
	if document != "" {
		fmt.Fprintf(&b, "\n\nCurrent document:\n<document>\n%s\n</document>", document)
	}
	if selection != "" {
		fmt.Fprintf(&b, "\n\nThe user has selected this passage:\n<selection>\n%s\n</selection>", selection)
	}
	return b.String()
}

// buildReflectionPrompt seeds the narration stream with the edit summary.
func buildReflectionPrompt(toolResult string) string {
	return fmt.Sprintf(`The document edit was applied successfully. %s
Briefly explain to the user what changed and why. Do not repeat the full
document content and do not call any tools.`, toolResult)
}
