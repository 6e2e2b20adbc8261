package report_test

import (
	"testing"

	"github.com/laudoscribe/laudoscribe/internal/report"
)

func TestSanitizeRestructured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "full round trip",
			input: "**Achados:** [sem alterações]\n\n\n\nFim.",
			want:  "Achados: sem alterações\n\nFim.",
		},
		{
			name:  "bold markers",
			input: "**TÉCNICA:** sequências multiplanares.",
			want:  "TÉCNICA: sequências multiplanares.",
		},
		{
			name:  "italic markers",
			input: "achado *sutil* na imagem",
			want:  "achado sutil na imagem",
		},
		{
			name:  "heading markers per line",
			input: "# Achados\n## Conclusão",
			want:  "Achados\nConclusão",
		},
		{
			name:  "bullet markers per line",
			input: "- primeiro achado\n• segundo achado",
			want:  "primeiro achado\nsegundo achado",
		},
		{
			name:  "hyphen mid-line untouched",
			input: "transição crânio-cervical normal",
			want:  "transição crânio-cervical normal",
		},
		{
			name:  "bracket placeholders unwrapped",
			input: "Menisco medial [sem alterações].",
			want:  "Menisco medial sem alterações.",
		},
		{
			name:  "newline runs collapsed to two",
			input: "Achados.\n\n\n\n\nConclusão.",
			want:  "Achados.\n\nConclusão.",
		},
		{
			name:  "double newline preserved",
			input: "Achados.\n\nConclusão.",
			want:  "Achados.\n\nConclusão.",
		},
		{
			name:  "trimmed",
			input: "  \nlaudo final\n ",
			want:  "laudo final",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := report.SanitizeRestructured(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeRestructured(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
