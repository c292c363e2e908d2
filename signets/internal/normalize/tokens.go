package normalize

import (
	"strings"

	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"such": true, "that": true, "the": true, "their": true, "then": true,
	"there": true, "these": true, "they": true, "this": true, "to": true,
	"was": true, "will": true, "with": true, "not": true, "no": true,
}

// Tokens normalizes plain text and returns stemmed index terms, stop words
// removed. Plural and inflected forms collapse onto one stem here.
func Tokens(text string) []string {
	words := strings.Fields(Normalize(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		if s := english.Stem(w, false); s != "" {
			out = append(out, s)
		}
	}
	return out
}
