package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches maximal runs of ASCII letters and digits. Everything
// else (punctuation, whitespace, non-ASCII) acts as a separator.
var tokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and extracts alphanumeric tokens. Documents
// and queries must go through the same tokenizer so BM25 term statistics
// line up.
func Tokenize(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}
