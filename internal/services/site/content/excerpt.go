package content

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const excerptRunes = 220

// Summary returns the post's summary, deriving one from the HTML body when the
// CMS sent none.
func (p Post) Summary() string {
	if s := strings.TrimSpace(p.Excerpt); s != "" {
		return s
	}
	return Excerpt(p.Body, excerptRunes)
}

// Excerpt extracts the visible text of an HTML fragment, collapsing
// whitespace and cutting at a word boundary within limit runes.
func Excerpt(body string, limit int) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return truncateWords(strings.Join(strings.Fields(b.String()), " "), limit)
		case html.StartTagToken:
			if hidden(tokenizer) {
				skip++
			}
		case html.EndTagToken:
			if hidden(tokenizer) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func hidden(tokenizer *html.Tokenizer) bool {
	name, _ := tokenizer.TagName()
	switch string(name) {
	case "script", "style", "template":
		return true
	}
	return false
}

func truncateWords(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
