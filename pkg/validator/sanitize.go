package validator

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// SanitizeText strips markup from user supplied text and trims the result.
// The output is plain text: entities the policy escapes are decoded again.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}
