// Package engine implements the relevance pipeline: lexical and
// semantic keyword matching, composite scoring, duplicate clustering
// and trend detection.
package engine

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/signalsift/signalsift/internal/model"
)

// spanRadius is how much surrounding text a match span keeps for display.
const spanRadius = 40

// LexicalMatches finds keywords literally present in the item text.
// Phrases match as substrings; short tokens (<=3 chars) require word
// boundaries so "ai" does not match "said". Always case-insensitive.
func LexicalMatches(text string, keywords []model.Keyword) []model.Match {
	lower, offsets := foldOffsets(text)

	var matches []model.Match
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw.Text))
		if k == "" {
			continue
		}

		idx := -1
		if !strings.Contains(k, " ") && len(k) <= 3 {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			if loc := re.FindStringIndex(lower); loc != nil {
				idx = loc[0]
			}
		} else {
			idx = strings.Index(lower, k)
		}
		if idx < 0 {
			continue
		}

		matches = append(matches, model.Match{
			Keyword:    kw.Text,
			Kind:       model.MatchLexical,
			Similarity: 1.0,
			Span:       spanAround(text, offsets[idx], offsets[idx+len(k)]),
		})
	}
	return matches
}

// foldOffsets lowercases text rune by rune and records, for every byte
// of the lowered string, the byte offset of the originating rune in
// text. Lowercasing can change a rune's byte length (U+0130 shrinks
// from 2 bytes to 1), so offsets into the lowered string are not valid
// in the original; the table translates them. offsets has one extra
// entry mapping len(lowered) to len(text).
func foldOffsets(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		lr := unicode.ToLower(r)
		b.WriteRune(lr)
		for n := utf8.RuneLen(lr); n > 0; n-- {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, len(text))
	return b.String(), offsets
}

// spanAround cuts a display fragment around the hit at original-text
// byte offsets [hitStart, hitEnd), snapping the cut to rune boundaries.
func spanAround(text string, hitStart, hitEnd int) string {
	start := hitStart - spanRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := hitEnd + spanRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}

var titleNormalizeRe = regexp.MustCompile(`[^a-z0-9 ]+`)

// NormalizeTitle lowercases a title and strips punctuation, for
// duplicate candidate grouping.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = titleNormalizeRe.ReplaceAllString(t, " ")
	return strings.Join(strings.Fields(t), " ")
}

// TokenOverlap is the Jaccard similarity of the two texts' word sets,
// the dedup fallback when embeddings are unavailable.
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeTitle(s)) {
		set[tok] = struct{}{}
	}
	return set
}
