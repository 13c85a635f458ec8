// Package tokenizer estimates token counts for backends that do not report
// usage on every response.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// CountTokens provides a rough token count estimate: about 4/3 tokens per
// word, or one per 4 runes for scripts written without spaces, whichever is
// larger. Empty text counts as zero.
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	byWords := len(strings.Fields(text)) * 4 / 3
	byRunes := utf8.RuneCountInString(text) / 4
	return max(byWords, byRunes, 1)
}

// OrEstimate returns reported when the backend gave a count, and an estimate
// of text otherwise.
func OrEstimate(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return CountTokens(text)
}
