package report

// AutoText is a keyword-triggered canned clinical phrase scoped to one
// template. The keyword is a short trigger ("normal", "sd") matched
// case-insensitively; the text is the full phrase inserted into the report.
type AutoText struct {
	Keyword string
	Text    string
}

// KeywordReplacement is a whole-word abbreviation expansion scoped to one
// template, typically anatomical shorthand ("c1" to "C1"). It is applied to
// the report buffer on explicit request, unlike the global [ReplacementRule]
// set which runs on every transcript commit.
type KeywordReplacement struct {
	From string
	To   string
}

// Template is a named report skeleton. BaseText is the body merged into the
// report buffer on selection; AutoTexts and KeywordReplacements are the
// template's canned phrases and abbreviation rules, both applied in the
// order listed.
type Template struct {
	ID                  string
	Name                string
	BaseText            string
	AutoTexts           []AutoText
	KeywordReplacements []KeywordReplacement
}

// Region groups templates under an anatomical region ("Coluna", "Joelho").
type Region struct {
	ID        string
	Name      string
	Templates []Template
}

// Modality groups regions under an imaging modality ("Ressonância
// Magnética", "Tomografia Computadorizada"). Modality and Region are
// organizational metadata only; the pipeline operates on leaf templates.
type Modality struct {
	ID      string
	Name    string
	Regions []Region
}
