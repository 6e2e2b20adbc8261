// Package report implements the text transformation pipeline that turns raw
// Portuguese dictation transcripts into clinically formatted report text.
//
// Raw speech-to-text output arrives as spoken prose: punctuation is dictated
// as words ("vírgula", "ponto", "nova linha"), sentences start lowercase, and
// clinicians lean on personal abbreviations ("dx" for "diagnóstico"). The
// pipeline rewrites this in four ordered stages:
//
//  1. Punctuation normalization: spoken punctuation words become literal
//     punctuation ([NormalizePunctuation]).
//  2. Capitalization: sentence-initial letters are uppercased, including
//     Portuguese accented characters ([NormalizeCapitalization]).
//  3. Rule substitution: user-curated whole-word abbreviation expansions
//     ([RuleEngine]).
//  4. Whitespace canonicalization: redundant whitespace and spacing around
//     punctuation is fixed ([CanonicalizeWhitespace]).
//
// The [Pipeline] composes the four stages; the [Session] owns the report
// buffer and the template-driven operations (composition, auto-texts,
// keyword canonicalization, find/replace). All transformations are pure
// functions over their string input and never fail.
package report

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// spokenRule is a single spoken-punctuation rewrite: a compiled pattern and
// the literal text that replaces each match.
type spokenRule struct {
	pattern *regexp.Regexp
	literal string
}

// spokenPunctuation is the ordered list of spoken-punctuation rewrites.
//
// Order is a behavioral contract, not an implementation detail: the rules run
// sequentially, each pass re-scanning the full output of the previous pass.
// A word embedded in a multi-word phrase handled by a later rule may already
// have been consumed by an earlier rule (a bare "ponto" inside "ponto de
// interrogação" is claimed by the "ponto" rule first). Callers that depend on
// the exact rewrite of such phrases depend on this ordering. Do not merge the
// rules into a single alternation; simultaneous matching changes which
// phrases win.
var spokenPunctuation = []spokenRule{
	{regexp.MustCompile(`(?i)\s*\bvírgula\b\s*`), ", "},
	{regexp.MustCompile(`(?i)\s*\bponto\b\s*$`), "."},
	{regexp.MustCompile(`(?i)\s*\bponto\b\s*`), ". "},
	{regexp.MustCompile(`(?i)\s*\bponto de interrogação\b\s*`), "? "},
	{regexp.MustCompile(`(?i)\s*\bponto de exclamação\b\s*`), "! "},
	{regexp.MustCompile(`(?i)\s*\bdois pontos\b\s*`), ": "},
	{regexp.MustCompile(`(?i)\s*\bponto e vírgula\b\s*`), "; "},
	{regexp.MustCompile(`(?i)\s*\babre parênteses\b\s*`), " ("},
	{regexp.MustCompile(`(?i)\s*\bfecha parênteses\b\s*`), ") "},
	{regexp.MustCompile(`(?i)\s*\bnova linha\b\s*`), "\n"},
	{regexp.MustCompile(`(?i)\s*\bnovo parágrafo\b\s*`), "\n\n"},
}

// NormalizePunctuation rewrites spoken punctuation words in a Portuguese
// dictation transcript into literal punctuation. Each rule consumes the
// whitespace surrounding the spoken word so that "normal vírgula sem" becomes
// "normal, sem" rather than "normal , sem".
func NormalizePunctuation(text string) string {
	for _, r := range spokenPunctuation {
		text = r.pattern.ReplaceAllString(text, r.literal)
	}
	return text
}

// afterSentence matches a lowercase letter that immediately follows a
// sentence-ending period and space. \p{Ll} covers Portuguese accented
// vowels and ç, which an [a-z] class would miss.
var afterSentence = regexp.MustCompile(`\. \p{Ll}`)

// NormalizeCapitalization uppercases sentence-initial letters: the first
// letter of the text and any letter directly following ". ". No other
// capitalization (proper nouns, sentence-internal words) is touched.
func NormalizeCapitalization(text string) string {
	text = afterSentence.ReplaceAllStringFunc(text, strings.ToUpper)

	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || !unicode.IsLetter(r) || unicode.IsUpper(r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	spaceBeforeStop = regexp.MustCompile(` +([.,])`)
)

// CanonicalizeWhitespace collapses every whitespace run to a single space,
// trims the result, and removes spaces left dangling before a period or
// comma. It is idempotent: applying it twice yields the same string as
// applying it once.
func CanonicalizeWhitespace(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return spaceBeforeStop.ReplaceAllString(text, "$1")
}
