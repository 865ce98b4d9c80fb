package extract

import (
	"regexp"
	"strings"
)

// EmailPattern matches a local part of letters, digits and ._%+- followed by a
// domain of letters, digits, dots and hyphens ending in a 2+ letter label.
const EmailPattern = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

// Extractor finds candidate email addresses in free text
type Extractor struct {
	pattern *regexp.Regexp
}

// New creates an extractor using the default email pattern
func New() *Extractor {
	return &Extractor{pattern: regexp.MustCompile(EmailPattern)}
}

// Extract returns all non-overlapping matches in order of appearance.
// Matches are returned as written; no case folding is applied.
func (e *Extractor) Extract(text string) []string {
	if text == "" {
		return nil
	}
	return e.pattern.FindAllString(text, -1)
}

// Domain returns the part of an address after the first '@'
func Domain(email string) (string, bool) {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return "", false
	}
	return email[at+1:], true
}
