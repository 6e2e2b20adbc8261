package openai

import (
	"testing"
	"time"
)

func TestDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		// Gateways often prefix or suffix the model name.
		{"openai/text-embedding-3-large", 3072},
		{"some-future-model", fallbackDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p := &Provider{model: tt.model}
			if got := p.Dimensions(); got != tt.want {
				t.Errorf("Dimensions() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestModelID_ReturnsConfiguredModel(t *testing.T) {
	for _, model := range []string{
		"text-embedding-3-small",
		"my-custom-embeddings-model",
	} {
		p := &Provider{model: model}
		if got := p.ModelID(); got != model {
			t.Errorf("ModelID() = %q, want %q", got, model)
		}
	}
}

func TestNew_EmptyModelSelectsDefault(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want default %q", p.ModelID(), DefaultModel)
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("New with empty API key succeeded, want error")
	}
}

func TestNew_AcceptsOptions(t *testing.T) {
	_, err := New("sk-test", "text-embedding-3-small",
		WithBaseURL("https://gateway.example.com/v1"),
		WithOrganization("org-123"),
		WithTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("New with options: %v", err)
	}
}

func TestToFloat32(t *testing.T) {
	in := []float64{1.0, 2.5, -0.5}
	out := toFloat32(in)
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i, v := range out {
		if v != float32(in[i]) {
			t.Errorf("out[%d] = %v, want %v", i, v, float32(in[i]))
		}
	}
}
