package report

import (
	"regexp"
	"strings"
)

var (
	headingMarker  = regexp.MustCompile(`(?m)^#+\s*`)
	bulletMarker   = regexp.MustCompile(`(?m)^[-•]\s*`)
	bracketWrap    = regexp.MustCompile(`\[([^\[\]]*)\]`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// SanitizeRestructured cleans text returned by the LLM restructuring call
// before it replaces the report buffer. LLMs decorate their output with
// markdown even when told not to; the report editor wants plain clinical
// prose. The steps run in a fixed order:
//
//  1. strip ** bold markers,
//  2. strip single * markers,
//  3. strip leading # heading markers per line,
//  4. strip leading - and • bullet markers per line,
//  5. unwrap [bracketed placeholders], keeping the inner text,
//  6. collapse runs of three or more newlines down to two,
//  7. trim surrounding whitespace.
func SanitizeRestructured(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")
	text = headingMarker.ReplaceAllString(text, "")
	text = bulletMarker.ReplaceAllString(text, "")
	text = bracketWrap.ReplaceAllString(text, "$1")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
