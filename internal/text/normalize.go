package text

import (
	"strings"
	"unicode"
)

// Normalize cleans up raw extractor output before tokenization. Extracted
// text is untrusted: PDF extractors in particular emit stray control
// characters, broken encodings, and erratic whitespace. Runs of whitespace
// collapse to a single space so token offsets are stable across extractors
// that disagree about line breaks.
func Normalize(raw string) string {
	cleaned := strings.ToValidUTF8(raw, "")

	var b strings.Builder
	b.Grow(len(cleaned))
	inSpace := false
	for _, r := range cleaned {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Tokenize splits normalized text into whitespace-delimited tokens. The
// token is the unit the chunker windows over and the unit chunk offsets are
// expressed in.
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}
