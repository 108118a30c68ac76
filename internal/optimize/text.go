package optimize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentenceEnders are the runes that terminate a sentence for the purposes of
// long-segment splitting and terminal punctuation checks.
const sentenceEnders = ".!?"

// normalizeWhitespace collapses all runs of whitespace to single spaces and
// trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupeKey produces the canonical form used for duplicate detection:
// lower-cased, whitespace-trimmed text.
func dedupeKey(s string) string {
	return strings.ToLower(normalizeWhitespace(s))
}

// hasTerminalPunctuation reports whether s ends with sentence-ending
// punctuation, optionally followed by a closing quote.
func hasTerminalPunctuation(s string) bool {
	s = strings.TrimRight(s, `"'”’`)
	if s == "" {
		return false
	}
	// The ellipsis is multi-byte; indexing the last byte would miss it.
	r, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(sentenceEnders+"…", r)
}

// joinText concatenates two segment texts with a separating space, avoiding
// doubled punctuation at the seam (a trailing "." on a followed by a leading
// "." on b).
func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	if hasTerminalPunctuation(a) {
		b = strings.TrimLeft(b, sentenceEnders+",")
		b = strings.TrimSpace(b)
		if b == "" {
			return a
		}
	}
	return a + " " + b
}

// splitSentences splits text at sentence-ending punctuation boundaries. Each
// returned sentence retains its terminal punctuation. Text with no sentence
// boundary comes back as a single element.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(sentenceEnders, runes[i]) {
			continue
		}
		// Absorb consecutive enders ("?!", "...") and a closing quote.
		j := i
		for j+1 < len(runes) && strings.ContainsRune(sentenceEnders+`"'”’`, runes[j+1]) {
			j++
		}
		// Only a real boundary when followed by whitespace or end of text.
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		s := strings.TrimSpace(string(runes[start : j+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = j + 1
		i = j
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	if sentences == nil {
		return []string{text}
	}
	return sentences
}
