// Package restructure implements the LLM-backed report restructuring stage
// that reorganizes a dictated transcription into the shape of a chosen
// report template.
//
// The [Restructurer] sends the transcription to an [llm.Provider] along with
// the template's base text. The model is instructed (via a conservative
// Portuguese system prompt) to distribute the dictated findings over the
// template's sections without inventing findings that were not dictated.
// The raw model output is stripped of markdown fences and run through
// [report.SanitizeRestructured] before it is handed back to the session.
//
// This stage runs on explicit user request only — never on the live
// dictation path — so the multi-second model latency is acceptable. When the
// model returns empty or unusable output, the restructurer returns the
// original transcription unchanged rather than surfacing an error.
package restructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/laudoscribe/laudoscribe/internal/report"
	"github.com/laudoscribe/laudoscribe/pkg/provider/llm"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 4096
)

// systemPromptTemplate is the base system prompt. The template name and base
// text are interpolated at call time so each request carries the session's
// selected template.
const systemPromptTemplate = `Você é um assistente de redação de laudos radiológicos.

Sua tarefa: reorganizar a transcrição ditada pelo médico seguindo a estrutura do modelo de laudo fornecido.

Regras:
- Use EXATAMENTE as seções e a ordem do modelo de laudo abaixo.
- Distribua os achados ditados nas seções apropriadas do modelo.
- NÃO invente achados que não foram ditados.
- Onde o modelo traz uma frase de normalidade e o médico não ditou alteração, mantenha a frase de normalidade do modelo.
- Mantenha a terminologia médica ditada; corrija apenas concordância e pontuação.
- Responda SOMENTE com o texto final do laudo, sem comentários, sem markdown, sem cabeçalhos adicionais.

Modelo de laudo (%s):
%s`

// Request carries everything the restructuring call needs.
type Request struct {
	// Transcription is the accumulated dictated text to reorganize.
	Transcription string

	// TemplateName is the display name of the selected template.
	TemplateName string

	// TemplateBaseText is the selected template's skeleton body.
	TemplateBaseText string

	// StylePreferences is optional free-text guidance about the clinician's
	// writing style ("frases curtas", "evitar voz passiva").
	StylePreferences string

	// ExamContext is optional free-text patient or exam context ("paciente
	// com cervicalgia há 3 meses").
	ExamContext string
}

// Option is a functional option for configuring a [Restructurer].
type Option func(*Restructurer)

// WithTemperature sets the LLM sampling temperature. Lower values produce
// more deterministic output. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(r *Restructurer) {
		r.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 4096.
func WithMaxTokens(n int) Option {
	return func(r *Restructurer) {
		r.maxTokens = n
	}
}

// Restructurer uses an [llm.Provider] to reorganize dictated text into a
// report template's structure. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to use a
// specific model for restructuring, construct the [llm.Provider] with that
// model configured, rather than overriding per-request.
type Restructurer struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a new [Restructurer] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Restructurer {
	r := &Restructurer{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Restructure sends the transcription and template to the LLM and returns
// the sanitized restructured report text.
//
// When the model returns empty output (after fence stripping and
// sanitization), Restructure returns the original transcription unchanged
// with a nil error (graceful degradation — dictated content must never be
// lost to a bad model response).
//
// Context cancellation and network errors are returned as non-nil errors;
// the caller keeps the buffer untouched in that case.
func (r *Restructurer) Restructure(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Transcription) == "" {
		return req.Transcription, nil
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(req),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserMessage(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("restructure: complete: %w", err)
	}

	cleaned := report.SanitizeRestructured(stripFences(resp.Content))
	if cleaned == "" {
		// Unusable response: keep the dictated text, no error.
		return req.Transcription, nil
	}
	return cleaned, nil
}

// buildSystemPrompt formats the system prompt template with the selected
// template's name and base text.
func buildSystemPrompt(req Request) string {
	name := req.TemplateName
	if name == "" {
		name = "sem nome"
	}
	return fmt.Sprintf(systemPromptTemplate, name, req.TemplateBaseText)
}

// buildUserMessage assembles the user message from the transcription plus
// the optional style and exam context sections.
func buildUserMessage(req Request) string {
	var sb strings.Builder
	sb.WriteString("Transcrição ditada:\n")
	sb.WriteString(req.Transcription)
	if req.ExamContext != "" {
		sb.WriteString("\n\nContexto do exame: ")
		sb.WriteString(req.ExamContext)
	}
	if req.StylePreferences != "" {
		sb.WriteString("\n\nPreferências de estilo: ")
		sb.WriteString(req.StylePreferences)
	}
	return sb.String()
}

// stripFences removes optional markdown code fences (``` ... ```) that some
// models wrap around plain-text output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```text", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
