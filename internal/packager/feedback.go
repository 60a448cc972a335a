package packager

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

// MaxFeedbackRunes caps a single cleaned feedback answer.
const MaxFeedbackRunes = 500

// stopList holds non-answers, case folded.
var stopList = map[string]struct{}{
	"no":   {},
	"nah":  {},
	"na":   {},
	"n/a":  {},
	"-":    {},
	"none": {},
	"no.":  {},
	"nope": {},
}

// Cleaner normalizes free-text answers. Safe for concurrent use.
type Cleaner struct {
	policy *bluemonday.Policy
}

// NewCleaner returns a Cleaner that strips all markup.
func NewCleaner() *Cleaner {
	return &Cleaner{policy: bluemonday.StrictPolicy()}
}

// Clean strips markup, collapses whitespace, and truncates s. It reports
// false when nothing meaningful is left.
func (c *Cleaner) Clean(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	text := html.UnescapeString(c.policy.Sanitize(s))
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || IsNonAnswer(text) {
		return "", false
	}
	return truncate(text, MaxFeedbackRunes), true
}

// IsNonAnswer reports whether s is a stop-list entry such as "N/A" or "Nope".
func IsNonAnswer(s string) bool {
	folded := cases.Fold().String(strings.Join(strings.Fields(s), " "))
	_, ok := stopList[folded]
	return ok
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
