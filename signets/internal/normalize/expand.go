package normalize

import (
	"regexp"
	"strings"
)

var honorifics = map[string]string{
	"mr.":   "mister",
	"mrs.":  "missus",
	"ms.":   "miss",
	"dr.":   "doctor",
	"prof.": "professor",
	"sr.":   "senior",
	"jr.":   "junior",
	"st.":   "saint",
	"rev.":  "reverend",
	"gen.":  "general",
	"capt.": "captain",
}

// Whole-word contractions that suffix rules get wrong.
var contractions = map[string]string{
	"can't":   "can not",
	"cannot":  "can not",
	"won't":   "will not",
	"shan't":  "shall not",
	"ain't":   "is not",
	"let's":   "let us",
	"y'all":   "you all",
	"o'clock": "of the clock",
	"it's":    "it is",
	"that's":  "that is",
	"what's":  "what is",
	"there's": "there is",
	"here's":  "here is",
	"he's":    "he is",
	"she's":   "she is",
	"who's":   "who is",
	"where's": "where is",
}

var suffixContractions = []struct{ suffix, repl string }{
	{"n't", " not"},
	{"'re", " are"},
	{"'ll", " will"},
	{"'ve", " have"},
	{"'m", " am"},
	{"'d", " would"},
}

// u.s.a. → usa, e.g. → eg
var acronymRe = regexp.MustCompile(`^(?:\p{L}\.){2,}\p{L}?$`)

// expandWord rewrites one case-folded word into its canonical surface forms.
func expandWord(w string) []string {
	if h, ok := honorifics[w]; ok {
		return []string{h}
	}

	w = strings.Trim(w, `"()[]{}<>,;:!?`)
	if acronymRe.MatchString(w) {
		return []string{strings.ReplaceAll(w, ".", "")}
	}
	w = strings.Trim(w, ".'")

	if c, ok := contractions[w]; ok {
		return strings.Fields(c)
	}
	for _, sc := range suffixContractions {
		if strings.HasSuffix(w, sc.suffix) && len(w) > len(sc.suffix) {
			return strings.Fields(strings.TrimSuffix(w, sc.suffix) + sc.repl)
		}
	}

	// Possessives: "bob's" → "bob", "dogs'" already lost its quote above.
	if strings.HasSuffix(w, "'s") && len(w) > 2 {
		return []string{strings.TrimSuffix(w, "'s")}
	}
	return []string{w}
}
