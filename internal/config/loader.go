package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"deepgram", "whisper"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; dictation sessions will only accept typed text")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; report restructuring will not be available")
	}

	// Embeddings ↔ catalog dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Catalog.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but catalog.embedding_dimensions is not set; the provider's own dimension will be used")
	}
	if cfg.Providers.Embeddings.Name == "" && cfg.Catalog.EmbeddingDimensions > 0 {
		slog.Warn("catalog.embedding_dimensions is set but no embeddings provider is configured; semantic template search stays disabled")
	}

	// Catalog availability
	if cfg.Catalog.PostgresDSN == "" {
		slog.Warn("catalog.postgres_dsn is empty; templates and replacement rules will not be available")
	}

	// Dictation
	if cfg.Dictation.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("dictation.sample_rate %d must not be negative", cfg.Dictation.SampleRate))
	}
	if cfg.Dictation.Channels != 0 && cfg.Dictation.Channels != 1 && cfg.Dictation.Channels != 2 {
		errs = append(errs, fmt.Errorf("dictation.channels %d is invalid; valid values: 1, 2", cfg.Dictation.Channels))
	}

	// Restructure
	if cfg.Restructure.Temperature < 0 || cfg.Restructure.Temperature > 2 {
		errs = append(errs, fmt.Errorf("restructure.temperature %.2f is out of range [0, 2]", cfg.Restructure.Temperature))
	}
	if cfg.Restructure.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("restructure.max_tokens %d must not be negative", cfg.Restructure.MaxTokens))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
