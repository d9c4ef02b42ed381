package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// PreviewLength is the number of runes of body text shown in listings
const PreviewLength = 120

// StrictPolicy allows no elements at all
var StrictPolicy = bluemonday.StrictPolicy()

// Preview returns the start of a plain text body as an HTML-safe snippet.
// The text is escaped before sanitizing, so angle brackets in the body show
// up as entities instead of being dropped as tags.
func Preview(body string) string {
	snippet := Truncate(strings.Join(strings.Fields(body), " "), PreviewLength)
	return StrictPolicy.Sanitize(html.EscapeString(snippet))
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// NormalizeSubject trims a subject line and caps it at 255 runes. The text
// itself is stored as given.
func NormalizeSubject(subject string) string {
	return Truncate(strings.TrimSpace(subject), 255)
}
