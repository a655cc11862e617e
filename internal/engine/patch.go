package engine

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// MatchStage identifies which matcher stage located a snippet.
type MatchStage int

const (
	StageNone MatchStage = iota
	StageExact
	StageNormalized
	StageRelaxed
)

// String returns the metric label for the stage.
func (s MatchStage) String() string {
	switch s {
	case StageExact:
		return "exact"
	case StageNormalized:
		return "normalized"
	case StageRelaxed:
		return "relaxed"
	default:
		return "not_found"
	}
}

// Locator finds the span of a document to replace for a partial edit.
//
// Backends frequently reproduce the source snippet with whitespace, case, or
// markup differences, so location runs a cascade of increasingly tolerant
// stages; the first success wins. When no stage produces a confident match
// the locator refuses rather than risk corrupting the document.
type Locator struct {
	// PrefixWindow is the normalized-prefix length (in characters) used by
	// the normalized stage when the full normalized snippet is absent.
	PrefixWindow int

	// RegexBound limits the relaxed stage to a document prefix (bytes).
	RegexBound int

	// RegexTimeout bounds a single relaxed-stage match attempt.
	RegexTimeout time.Duration
}

// NewLocator returns a locator with default tunables.
func NewLocator() *Locator {
	return &Locator{
		PrefixWindow: 50,
		RegexBound:   24 * 1024,
		RegexTimeout: 200 * time.Millisecond,
	}
}

// Apply replaces the located occurrence of snippet in content with
// replacement and returns the new content plus the stage that matched.
// On failure the original content is returned unchanged with
// ErrEditNotLocated.
func (l *Locator) Apply(content, snippet, replacement string) (string, MatchStage, error) {
	if snippet == "" {
		return content, StageNone, ErrEditNotLocated
	}

	// Stage 1: verbatim substring, first occurrence.
	if idx := strings.Index(content, snippet); idx >= 0 {
		return content[:idx] + replacement + content[idx+len(snippet):], StageExact, nil
	}

	// Stage 2: markup-stripped, whitespace-collapsed, case-folded match.
	if start, end, ok := l.matchNormalized(content, snippet); ok {
		return content[:start] + replacement + content[end:], StageNormalized, nil
	}

	// Stage 3: relaxed regex over a bounded document prefix.
	if out, ok := l.matchRelaxed(content, snippet, replacement); ok {
		return out, StageRelaxed, nil
	}

	return content, StageNone, ErrEditNotLocated
}

// normalized is plain text derived from markup, with per-character maps
// back to the raw byte offsets that produced it.
type normalized struct {
	text      string
	offs      []int // byte offset within text of each normalized rune
	rawStarts []int // raw byte offset where each normalized rune begins
	rawEnds   []int // raw byte offset just past each normalized rune
}

// normalizeMarkup strips tags, collapses whitespace runs (tags count as
// separators) to a single space, and lower-cases, recording the raw span
// each emitted character came from.
func normalizeMarkup(s string) normalized {
	var b strings.Builder
	n := normalized{}

	pendingSpace := false
	spaceFrom := 0

	emit := func(r rune, rawStart, rawEnd int) {
		n.offs = append(n.offs, b.Len())
		n.rawStarts = append(n.rawStarts, rawStart)
		n.rawEnds = append(n.rawEnds, rawEnd)
		b.WriteRune(r)
	}

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])

		if r == '<' {
			if !pendingSpace {
				pendingSpace, spaceFrom = true, i
			}
			if close := strings.IndexByte(s[i:], '>'); close >= 0 {
				i += close + 1
			} else {
				i = len(s)
			}
			continue
		}

		if unicode.IsSpace(r) {
			if !pendingSpace {
				pendingSpace, spaceFrom = true, i
			}
			i += size
			continue
		}

		if pendingSpace && b.Len() > 0 {
			emit(' ', spaceFrom, i)
		}
		pendingSpace = false

		emit(unicode.ToLower(r), i, i+size)
		i += size
	}

	n.text = b.String()
	return n
}

// runeIndexAt maps a byte offset in the normalized text to the index of the
// normalized rune starting at (or after) it.
func (n *normalized) runeIndexAt(byteOff int) int {
	return sort.SearchInts(n.offs, byteOff)
}

// rawSpan maps a normalized match [from, to) (rune indices) to raw byte
// offsets in the source markup.
func (n *normalized) rawSpan(from, to int) (int, int) {
	if to > len(n.rawEnds) {
		to = len(n.rawEnds)
	}
	return n.rawStarts[from], n.rawEnds[to-1]
}

func (l *Locator) matchNormalized(content, snippet string) (int, int, bool) {
	doc := normalizeMarkup(content)
	snip := normalizeMarkup(snippet)
	if snip.text == "" || doc.text == "" {
		return 0, 0, false
	}

	snipRunes := utf8.RuneCountInString(snip.text)

	// Full normalized snippet present in the normalized document.
	if pos := strings.Index(doc.text, snip.text); pos >= 0 {
		from := doc.runeIndexAt(pos)
		start, end := doc.rawSpan(from, from+snipRunes)
		return start, end, true
	}

	// Fall back to the leading prefix window: the located region is assumed
	// to have the snippet's normalized length.
	window := l.PrefixWindow
	if window <= 0 || snipRunes <= window {
		return 0, 0, false
	}
	prefix := string([]rune(snip.text)[:window])
	pos := strings.Index(doc.text, prefix)
	if pos < 0 {
		return 0, 0, false
	}
	from := doc.runeIndexAt(pos)
	start, end := doc.rawSpan(from, from+snipRunes)
	return start, end, true
}

// relaxedPattern builds a case-insensitive pattern from the raw snippet:
// whitespace runs become \s+ gaps and angle brackets match either bracket.
func relaxedPattern(snippet string) string {
	var b strings.Builder
	gap := false
	for _, r := range snippet {
		if unicode.IsSpace(r) {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteString(`\s+`)
		}
		gap = false
		if r == '<' || r == '>' {
			b.WriteString("[<>]")
		} else {
			b.WriteString(regexp2.Escape(string(r)))
		}
	}
	return b.String()
}

func (l *Locator) matchRelaxed(content, snippet, replacement string) (string, bool) {
	pattern := relaxedPattern(snippet)
	if pattern == "" {
		return "", false
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return "", false
	}
	if l.RegexTimeout > 0 {
		re.MatchTimeout = l.RegexTimeout
	}

	region := content
	if l.RegexBound > 0 && len(content) > l.RegexBound {
		cut := l.RegexBound
		for cut < len(content) && !utf8.RuneStart(content[cut]) {
			cut++
		}
		region = content[:cut]
	}

	m, err := re.FindStringMatch(region)
	if err != nil || m == nil {
		return "", false
	}

	// regexp2 match positions are rune-based.
	runes := []rune(region)
	out := string(runes[:m.Index]) + replacement + string(runes[m.Index+m.Length:]) + content[len(region):]
	return out, true
}
