package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanText normalises user supplied free text to NFC, strips any markup and collapses
// surrounding whitespace. Entities produced by the policy are unescaped so that stored text
// stays plain.
func CleanText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = norm.NFC.String(value)
	value = html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.TrimSpace(value)
}
