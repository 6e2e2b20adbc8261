package report

// Pipeline is the composite transformation applied to every committed
// transcript chunk before it enters the report buffer:
//
//	Punctuation → Capitalization → Rule substitution → Whitespace
//
// The stages run in this exact order; capitalization depends on the periods
// produced by punctuation normalization, and whitespace canonicalization
// cleans up spacing introduced by all earlier stages. Apply is pure and
// stateless per call, so short fragments transform the same whether they
// arrive alone or as part of a longer dictation.
type Pipeline struct {
	rules *RuleEngine
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithRuleEngine installs the global replacement-rule engine used for the
// rule substitution stage. Without it the stage is a no-op.
func WithRuleEngine(engine *RuleEngine) PipelineOption {
	return func(p *Pipeline) {
		p.rules = engine
	}
}

// NewPipeline creates a transcript transformation pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply transforms one committed transcript chunk into report-ready text.
func (p *Pipeline) Apply(text string) string {
	text = NormalizePunctuation(text)
	text = NormalizeCapitalization(text)
	if p.rules != nil {
		text = p.rules.Apply(text)
	}
	return CanonicalizeWhitespace(text)
}
