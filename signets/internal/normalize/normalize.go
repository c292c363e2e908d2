// Package normalize turns fetched HTML into flat, indexable text.
//
// Text strips markup and applies linguistic normalization; Tokens splits
// normalized text into index terms. Both documents and queries go through
// Tokens so that they meet on the same surface forms.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// strict removes every element. Script, style and similar elements lose
// their content too (bluemonday default).
var strict = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// Text strips markup from rawHTML and returns the normalized token text.
// It never panics: on an internal failure it returns whatever was produced
// up to that point.
func Text(rawHTML string) (out string) {
	var partial string
	defer func() {
		if r := recover(); r != nil {
			out = partial
		}
	}()

	stripped := StripMarkup(rawHTML)
	partial = collapseWhitespace(stripped)
	return normalizeText(stripped)
}

// normalizeText is the normalization step of Text. Tests replace it.
var normalizeText = Normalize

// StripMarkup removes tags, scripts and styles and unescapes entities.
func StripMarkup(rawHTML string) string {
	return html.UnescapeString(strict.Sanitize(rawHTML))
}

// Normalize applies unicode, case, punctuation and word-form normalization
// to plain text and returns space-separated tokens.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = foldDiacritics(text)
	text = cases.Fold().String(text)
	text = punctuation.Replace(text)

	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		for _, x := range expandWord(w) {
			out = append(out, splitPunct(x)...)
		}
	}
	return strings.Join(out, " ")
}

// foldDiacritics removes combining marks (é → e). A fresh transformer is
// built per call; transform.Transformer is not safe for concurrent use.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var punctuation = strings.NewReplacer(
	"‘", "'", "’", "'", "ʼ", "'", "`", "'",
	"“", `"`, "”", `"`, "«", `"`, "»", `"`,
	"–", "-", "—", "-", "−", "-",
	"…", "...",
)

var wsRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// splitPunct breaks a word on anything that is not a letter or digit.
func splitPunct(w string) []string {
	return strings.FieldsFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
