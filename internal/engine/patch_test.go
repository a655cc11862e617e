package engine

import (
	"errors"
	"testing"
	"time"
)

func TestApplyExactFirstOccurrence(t *testing.T) {
	l := NewLocator()

	content := "<p>The cat sat.</p><p>The cat sat.</p>"
	out, stage, err := l.Apply(content, "The cat sat.", "The dog stood.")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if stage != StageExact {
		t.Errorf("stage = %v, want exact", stage)
	}
	want := "<p>The dog stood.</p><p>The cat sat.</p>"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestApplyExactIsByteIdentical(t *testing.T) {
	l := NewLocator()

	// A verbatim match must replace exactly the snippet's bytes, with no
	// whitespace adjustment around it.
	content := "a  <b>x</b>  z"
	out, stage, err := l.Apply(content, "<b>x</b>", "<i>y</i>")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if stage != StageExact {
		t.Errorf("stage = %v, want exact", stage)
	}
	if out != "a  <i>y</i>  z" {
		t.Errorf("out = %q", out)
	}
}

func TestApplyNormalized(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		snippet     string
		replacement string
		want        string
	}{
		{
			name:        "case and whitespace differences",
			content:     "<p>The   CAT sat.</p>",
			snippet:     "The cat sat.",
			replacement: "The dog stood.",
			want:        "<p>The dog stood.</p>",
		},
		{
			name:        "snippet carries markup the document lacks",
			content:     "<p>Hello world</p>",
			snippet:     "<span>Hello</span> world",
			replacement: "Goodbye world",
			want:        "<p>Goodbye world</p>",
		},
		{
			name:        "newlines collapse to single separators",
			content:     "<ul><li>one</li>\n<li>two</li></ul>",
			snippet:     "one two",
			replacement: "three",
			want:        "<ul><li>three</li></ul>",
		},
	}

	l := NewLocator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stage, err := l.Apply(tt.content, tt.snippet, tt.replacement)
			if err != nil {
				t.Fatalf("Apply returned error: %v", err)
			}
			if stage != StageNormalized {
				t.Errorf("stage = %v, want normalized", stage)
			}
			if out != tt.want {
				t.Errorf("out = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestApplyNormalizedPrefixWindow(t *testing.T) {
	// With a full normalized match absent, a long snippet is located by its
	// leading window and the replaced region assumes the snippet's length.
	l := &Locator{PrefixWindow: 5, RegexBound: 24 * 1024, RegexTimeout: 200 * time.Millisecond}

	content := "hello wonderful world"
	snippet := "hello wonderful worlds and then some"
	out, stage, err := l.Apply(content, snippet, "replaced")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if stage != StageNormalized {
		t.Errorf("stage = %v, want normalized", stage)
	}
	if out != "replaced" {
		t.Errorf("out = %q, want %q", out, "replaced")
	}
}

func TestApplyRelaxed(t *testing.T) {
	l := NewLocator()

	// Pure markup normalizes to nothing, so only the relaxed stage can
	// locate a tag with internal whitespace differences.
	content := "intro\n<hr\n/>\noutro"
	out, stage, err := l.Apply(content, "<hr />", "<br/>")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if stage != StageRelaxed {
		t.Errorf("stage = %v, want relaxed", stage)
	}
	if out != "intro\n<br/>\noutro" {
		t.Errorf("out = %q", out)
	}
}

func TestApplyRelaxedRespectsBound(t *testing.T) {
	l := &Locator{PrefixWindow: 50, RegexBound: 10, RegexTimeout: 200 * time.Millisecond}

	// Target lies beyond the bounded prefix: the cascade must refuse.
	content := "0123456789abcdef<hr\n/>"
	out, stage, err := l.Apply(content, "<hr />", "<br/>")
	if !errors.Is(err, ErrEditNotLocated) {
		t.Fatalf("err = %v, want ErrEditNotLocated", err)
	}
	if stage != StageNone {
		t.Errorf("stage = %v, want none", stage)
	}
	if out != content {
		t.Errorf("content changed on refusal: %q", out)
	}
}

func TestApplyNotFoundLeavesContentUnchanged(t *testing.T) {
	l := NewLocator()
	content := "<p>Something else entirely.</p>"

	for i := 0; i < 2; i++ {
		out, stage, err := l.Apply(content, "The cat sat.", "The dog stood.")
		if !errors.Is(err, ErrEditNotLocated) {
			t.Fatalf("attempt %d: err = %v, want ErrEditNotLocated", i, err)
		}
		if stage != StageNone {
			t.Errorf("attempt %d: stage = %v, want none", i, stage)
		}
		if out != content {
			t.Errorf("attempt %d: content changed: %q", i, out)
		}
	}
}

func TestApplyEmptySnippet(t *testing.T) {
	l := NewLocator()
	if _, _, err := l.Apply("content", "", "x"); !errors.Is(err, ErrEditNotLocated) {
		t.Errorf("err = %v, want ErrEditNotLocated", err)
	}
}

func TestNormalizeMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hello   World</p>", "hello world"},
		{"a<br/>b", "a b"},
		{"  leading and trailing  ", "leading and trailing"},
		{"<div><span>", ""},
		{"MiXeD Case", "mixed case"},
	}
	for _, tt := range tests {
		if got := normalizeMarkup(tt.in).text; got != tt.want {
			t.Errorf("normalizeMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchStageString(t *testing.T) {
	tests := []struct {
		stage MatchStage
		want  string
	}{
		{StageExact, "exact"},
		{StageNormalized, "normalized"},
		{StageRelaxed, "relaxed"},
		{StageNone, "not_found"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.stage, got, tt.want)
		}
	}
}
