package report_test

import (
	"testing"

	"github.com/laudoscribe/laudoscribe/internal/report"
)

func TestPipelineApply(t *testing.T) {
	t.Parallel()

	engine := report.NewRuleEngine([]report.ReplacementRule{
		{ID: "1", From: "dx", To: "diagnóstico", AutoApply: true},
	})
	pipeline := report.NewPipeline(report.WithRuleEngine(engine))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "two sentences",
			input: "sem derrame articular ponto sem alterações ponto",
			want:  "Sem derrame articular. Sem alterações.",
		},
		{
			name:  "comma and trailing period",
			input: "estudo normal vírgula sem achados ponto",
			want:  "Estudo normal, sem achados.",
		},
		{
			name:  "rule substitution inside dictation",
			input: "o dx está pronto ponto",
			want:  "O diagnóstico está pronto.",
		},
		{
			name:  "short fragment",
			input: "sem achados",
			want:  "Sem achados",
		},
		{
			name:  "redundant whitespace cleaned",
			input: "laudo   final ponto ",
			want:  "Laudo final.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pipeline.Apply(tt.input)
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPipelineWithoutRuleEngine(t *testing.T) {
	t.Parallel()

	pipeline := report.NewPipeline()
	got := pipeline.Apply("dx sem alterações ponto")
	want := "Dx sem alterações."
	if got != want {
		t.Errorf("Apply() = %q, want %q (rule stage must be a no-op)", got, want)
	}
}

// Apply is pure: the same chunk transforms identically regardless of call
// order or repetition.
func TestPipelineApplyIsPure(t *testing.T) {
	t.Parallel()

	pipeline := report.NewPipeline()
	const input = "estudo normal vírgula sem achados ponto"
	first := pipeline.Apply(input)
	pipeline.Apply("outro trecho ponto")
	second := pipeline.Apply(input)
	if first != second {
		t.Errorf("Apply() not stable across calls: first %q, second %q", first, second)
	}
}
