package normalize

import (
	"reflect"
	"testing"
)

func TestText_StripsMarkup(t *testing.T) {
	// WHAT: Tags, scripts, styles and the title are removed; entities decoded.
	// WHY: Only visible body text belongs in the index.
	in := `<html><head><title>Page</title><style>.x{color:red}</style>
<script>alert("pwned")</script></head>
<body><p>Hello&nbsp;World</p><p>Second   line</p></body></html>`
	got := Text(in)
	want := "hello world second line"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestText_MalformedHTML(t *testing.T) {
	// WHAT: Unclosed tags still yield their text.
	// WHY: Normalizer must degrade gracefully, never fail.
	got := Text(`<div><p>unclosed <b>bold`)
	if got != "unclosed bold" {
		t.Errorf("got %q", got)
	}
}

func TestText_RecoversPartialText(t *testing.T) {
	// WHAT: A panic during normalization yields the stripped, whitespace
	// collapsed text instead of propagating.
	// WHY: a partially normalized page is more useful than none.
	orig := normalizeText
	normalizeText = func(string) string { panic("boom") }
	t.Cleanup(func() { normalizeText = orig })

	got := Text("<p>Hello</p>\n\n<p>World</p>")
	if got != "Hello World" {
		t.Errorf("got %q, want %q", got, "Hello World")
	}
}

func TestText_Empty(t *testing.T) {
	if got := Text(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"contractions and possessives", "Don't stop: it's Bob's car!", "do not stop it is bob car"},
		{"curly apostrophe", "They’re here", "they are here"},
		{"acronym and honorific", "The U.S.A. and Dr. Smith", "the usa and doctor smith"},
		{"diacritics", "Café Über", "cafe uber"},
		{"whitespace", "  a \t\n b  ", "a b"},
		{"punctuation split", "e-mail (draft), v2.0", "e mail draft v2 0"},
		{"fullwidth", "ＡＢＣ", "abc"},
		{"won't", "I won't", "i will not"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokens_StemsAndStopWords(t *testing.T) {
	// WHAT: Stop words dropped, plurals and inflections stemmed.
	// WHY: Queries and documents must meet on the same terms.
	got := Tokens("The widgets are running")
	want := []string{"widget", "run"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokens_PluralMatchesSingular(t *testing.T) {
	a, b := Tokens("Widget"), Tokens("widgets")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Widget=%v widgets=%v", a, b)
	}
}

func TestTokens_Empty(t *testing.T) {
	if got := Tokens("   "); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestTitle(t *testing.T) {
	got := Title(`<html><head><title>
  My   Page </title></head><body>x</body></html>`)
	if got != "My Page" {
		t.Errorf("got %q", got)
	}
	if got := Title(`<p>no title</p>`); got != "" {
		t.Errorf("no title: got %q", got)
	}
}
