package rss

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// StripMarkup removes every HTML tag from text and collapses whitespace, returning plain text.
func StripMarkup(text string) string {
	if text == "" {
		return ""
	}
	// Fast path: nothing tag-ish to strip.
	if !strings.ContainsAny(text, "<&") {
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	}
	plain := html.UnescapeString(strictPolicy.Sanitize(text))
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(plain, " "))
}
