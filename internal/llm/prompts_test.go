package llm

import (
	"strings"
	"testing"
)

func TestBuildSystemPrompt(t *testing.T) {
	got := buildSystemPrompt("<p>doc</p>", "doc")
	if !strings.Contains(got, "<document>\n<p>doc</p>\n</document>") {
		t.Errorf("document block missing:\n%s", got)
	}
	if !strings.Contains(got, "<selection>\ndoc\n</selection>") {
		t.Errorf("selection block missing:\n%s", got)
	}
}

func TestBuildSystemPromptOmitsEmptyBlocks(t *testing.T) {
	got := buildSystemPrompt("", "")
	if strings.Contains(got, "<document>") || strings.Contains(got, "<selection>") {
		t.Errorf("empty context produced delimiter blocks:\n%s", got)
	}
	if got != systemPromptBase {
		t.Errorf("prompt without context should be the base prompt")
	}
}
