package report

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// SuggesterOption is a functional option for configuring a [KeywordSuggester].
type SuggesterOption func(*KeywordSuggester)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be suggested. Default: 0.70.
func WithPhoneticThreshold(threshold float64) SuggesterOption {
	return func(s *KeywordSuggester) {
		s.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the suggester falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) SuggesterOption {
	return func(s *KeywordSuggester) {
		s.fuzzyThreshold = threshold
	}
}

// KeywordSuggester finds the known auto-text keyword closest to a spoken
// trigger that missed the exact lookup. Dictated keywords arrive through
// speech recognition and are frequently mangled ("sd" heard as "ésse dê");
// rather than dropping the action, the session surfaces the nearest known
// keyword so the user can confirm it.
//
// Matching runs in two stages: Double Metaphone codes filter keywords that
// sound alike, then Jaro-Winkler similarity ranks the candidates. When no
// keyword sounds alike, a stricter pure-similarity pass catches plain
// misspellings. All methods are safe for concurrent use; the suggester is
// read-only after construction.
type KeywordSuggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewKeywordSuggester returns a suggester configured with the supplied
// options.
func NewKeywordSuggester(opts ...SuggesterOption) *KeywordSuggester {
	s := &KeywordSuggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns the keyword from keywords most similar to the spoken
// trigger, with its similarity score. When nothing clears the thresholds,
// ok is false and keyword is empty.
func (s *KeywordSuggester) Suggest(spoken string, keywords []string) (keyword string, score float64, ok bool) {
	spoken = strings.ToLower(strings.TrimSpace(spoken))
	if spoken == "" || len(keywords) == 0 {
		return "", 0, false
	}

	spokenTokens := strings.Fields(spoken)
	spokenCodes := codesForTokens(spokenTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, kw := range keywords {
		kwLower := strings.ToLower(strings.TrimSpace(kw))
		if kwLower == "" {
			continue
		}
		kwTokens := strings.Fields(kwLower)

		phonetic := codesOverlap(spokenCodes, codesForTokens(kwTokens))
		jw := bestJWScore(spokenTokens, kwTokens, spoken, kwLower)

		if phonetic {
			if jw >= s.phoneticThreshold && (!bestPhonetic || jw > bestScore) {
				best, bestScore, bestPhonetic = kw, jw, true
			}
		} else if !bestPhonetic && jw >= s.fuzzyThreshold && jw > bestScore {
			best, bestScore = kw, jw
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// spoken trigger and a keyword: full strings, space-stripped strings, and
// the best pairwise token score.
func bestJWScore(spokenTokens, kwTokens []string, spokenFull, kwFull string) float64 {
	score := matchr.JaroWinkler(spokenFull, kwFull, false)

	if len(spokenTokens) > 1 || len(kwTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(spokenTokens, ""), strings.Join(kwTokens, ""), false); s > score {
			score = s
		}
	}

	for _, st := range spokenTokens {
		for _, kt := range kwTokens {
			if s := matchr.JaroWinkler(st, kt, false); s > score {
				score = s
			}
		}
	}

	return score
}
