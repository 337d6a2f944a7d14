package optimizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeText collapses whitespace runs, trims the result, and appends a
// period to substantive text lacking terminal punctuation. Returns "" for
// text that normalizes to nothing.
func normalizeText(text string) string {
	normalized := norm.NFC.String(text)
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return ""
	}
	if len(normalized) > 20 && !hasTerminalPunctuation(normalized) {
		normalized += "."
	}
	return normalized
}

func hasTerminalPunctuation(text string) bool {
	r := []rune(text)
	last := r[len(r)-1]
	return last == '.' || last == '!' || last == '?'
}

// sentenceBoundary matches the end of a sentence: terminal punctuation
// followed by whitespace. The letter after the whitespace is not checked,
// and punctuation at the very end of the text is not a match.
var sentenceBoundary = regexp.MustCompile(`([.!?])(\s+)`)

// splitSentences breaks normalized text into sentence-like spans. It is a
// practical approximation, not a full Unicode sentence-break
// implementation: terminal punctuation followed by whitespace starts a new
// sentence, which covers the prose this pipeline transcribes.
func splitSentences(text string) []string {
	text = norm.NFC.String(text)
	idxs := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	if len(idxs) == 0 {
		return []string{text}
	}

	var sentences []string
	start := 0
	for _, m := range idxs {
		end := m[3] // end of the punctuation; the whitespace opens the next span
		sentences = append(sentences, text[start:end])
		start = end
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
