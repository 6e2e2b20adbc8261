package report

import (
	"regexp"
	"strings"
)

// ReplacementRule is a global, user-managed whole-word substitution. Rules
// are applied in insertion order; a later rule may re-match text produced by
// an earlier one, which is accepted behavior since the rule list is curated
// by the clinician. Rules with AutoApply false are skipped by the automatic
// transcript pass and only run on an explicit apply-all action.
type ReplacementRule struct {
	ID        string
	From      string
	To        string
	AutoApply bool
}

// RuleEngine applies an ordered list of [ReplacementRule] entries to text.
//
// By default the From field of each rule is matched as literal text (regex
// metacharacters are escaped before compilation). [WithRawPatterns] switches
// the engine to compile From verbatim, for users who deliberately write
// regex rules. A From that fails to compile in raw mode is skipped, since
// rule application must stay a total function over its input.
type RuleEngine struct {
	rules   []ReplacementRule
	literal bool
}

// RuleEngineOption configures a [RuleEngine].
type RuleEngineOption func(*RuleEngine)

// WithRawPatterns makes the engine compile each rule's From field as a
// regular expression instead of escaping it as literal text.
func WithRawPatterns() RuleEngineOption {
	return func(e *RuleEngine) {
		e.literal = false
	}
}

// NewRuleEngine creates an engine over the given rules, kept in the order
// provided.
func NewRuleEngine(rules []ReplacementRule, opts ...RuleEngineOption) *RuleEngine {
	e := &RuleEngine{
		rules:   rules,
		literal: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs the automatic pass: every rule with AutoApply set, in order.
func (e *RuleEngine) Apply(text string) string {
	for _, rule := range e.rules {
		if !rule.AutoApply {
			continue
		}
		text = wholeWordReplace(text, rule.From, rule.To, e.literal)
	}
	return text
}

// ApplyAll runs every rule in order regardless of its AutoApply flag. This
// backs the manual "apply all rules" action.
func (e *RuleEngine) ApplyAll(text string) string {
	for _, rule := range e.rules {
		text = wholeWordReplace(text, rule.From, rule.To, e.literal)
	}
	return text
}

// Rules returns the engine's rule list in application order.
func (e *RuleEngine) Rules() []ReplacementRule {
	return e.rules
}

// wholeWordReplace replaces every whole-word, case-insensitive occurrence of
// from with to. With literal set, regex metacharacters in from are escaped
// first. Empty or uncompilable patterns leave the text unchanged.
func wholeWordReplace(text, from, to string, literal bool) string {
	if from == "" {
		return text
	}
	pattern := from
	if literal {
		pattern = regexp.QuoteMeta(from)
	}
	re, err := regexp.Compile(`(?i)\b` + pattern + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, escapeReplacement(to, literal))
}

// escapeReplacement neutralizes $ expansion in literal mode so that a To
// like "US$ 1" is inserted verbatim rather than treated as a capture
// reference.
func escapeReplacement(to string, literal bool) string {
	if !literal {
		return to
	}
	return strings.ReplaceAll(to, "$", "$$")
}
