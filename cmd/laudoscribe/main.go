// Command laudoscribe is the main entry point for the Laudoscribe dictation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/laudoscribe/laudoscribe/internal/catalog"
	"github.com/laudoscribe/laudoscribe/internal/config"
	"github.com/laudoscribe/laudoscribe/internal/health"
	"github.com/laudoscribe/laudoscribe/internal/observe"
	"github.com/laudoscribe/laudoscribe/internal/report"
	"github.com/laudoscribe/laudoscribe/internal/report/restructure"
	"github.com/laudoscribe/laudoscribe/internal/server"
	"github.com/laudoscribe/laudoscribe/pkg/provider/embeddings"
	ollamaembed "github.com/laudoscribe/laudoscribe/pkg/provider/embeddings/ollama"
	oaembed "github.com/laudoscribe/laudoscribe/pkg/provider/embeddings/openai"
	"github.com/laudoscribe/laudoscribe/pkg/provider/llm"
	"github.com/laudoscribe/laudoscribe/pkg/provider/llm/anyllm"
	"github.com/laudoscribe/laudoscribe/pkg/provider/stt"
	"github.com/laudoscribe/laudoscribe/pkg/provider/stt/deepgram"
	"github.com/laudoscribe/laudoscribe/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "laudoscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "laudoscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("laudoscribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "laudoscribe",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Catalog store (optional) ──────────────────────────────────────────────
	var store *catalog.Store
	if cfg.Catalog.PostgresDSN != "" {
		var storeOpts []catalog.Option
		if providers.Embeddings != nil {
			storeOpts = append(storeOpts, catalog.WithEmbeddings(providers.Embeddings))
			if cfg.Catalog.EmbeddingDimensions > 0 {
				storeOpts = append(storeOpts, catalog.WithEmbeddingDimensions(cfg.Catalog.EmbeddingDimensions))
			}
		}
		store, err = catalog.NewStore(ctx, cfg.Catalog.PostgresDSN, storeOpts...)
		if err != nil {
			slog.Error("failed to open catalog store", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("catalog store connected", "semantic_search", store.SearchEnabled())
	}

	// ── Text pipeline ─────────────────────────────────────────────────────────
	// Global replacement rules live in the catalog; without one the pipeline
	// still runs command conversion, whitespace cleanup and capitalization.
	var pipelineOpts []report.PipelineOption
	if store != nil {
		rules, err := store.Rules(ctx)
		if err != nil {
			slog.Error("failed to load replacement rules", "err", err)
			return 1
		}
		pipelineOpts = append(pipelineOpts, report.WithRuleEngine(report.NewRuleEngine(rules)))
		slog.Info("replacement rules loaded", "count", len(rules))
	}
	pipeline := report.NewPipeline(pipelineOpts...)

	// ── Restructurer (optional) ───────────────────────────────────────────────
	var restructurer *restructure.Restructurer
	if providers.LLM != nil {
		var ropts []restructure.Option
		if cfg.Restructure.Temperature > 0 {
			ropts = append(ropts, restructure.WithTemperature(cfg.Restructure.Temperature))
		}
		if cfg.Restructure.MaxTokens > 0 {
			ropts = append(ropts, restructure.WithMaxTokens(cfg.Restructure.MaxTokens))
		}
		restructurer = restructure.New(providers.LLM, ropts...)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, store)

	// ── HTTP server ───────────────────────────────────────────────────────────
	sessions := server.NewManager(server.SessionConfig{
		Pipeline: pipeline,
		STT:      providers.STT,
		STTName:  cfg.Providers.STT.Name,
		StreamConfig: stt.StreamConfig{
			SampleRate: cfg.Dictation.SampleRate,
			Channels:   cfg.Dictation.Channels,
			Language:   cfg.Dictation.Language,
		},
		Restructurer:     restructurer,
		StylePreferences: cfg.Restructure.StylePreferences,
		RawFindPatterns:  cfg.Dictation.RawFindPatterns,
		Metrics:          metrics,
	})

	var checkers []health.Checker
	var templates server.TemplateSource
	var search server.TemplateSearcher
	if store != nil {
		checkers = append(checkers, health.Checker{Name: "catalog", Check: store.Ping})
		templates = store
		if store.SearchEnabled() {
			search = store
		}
	}

	srv := server.New(server.Options{
		Config:    cfg.Server,
		Sessions:  sessions,
		Templates: templates,
		Search:    search,
		Health:    health.New(checkers...),
		Metrics:   metrics,
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Laudoscribe. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram", "whisper"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// providerSet holds the instantiated providers named in the configuration.
type providerSet struct {
	STT        stt.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// buildProviders instantiates all providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, store *catalog.Store) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Laudoscribe — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if store != nil {
		fmt.Printf("║  Catalog         : %-19s ║\n", "connected")
		searchState := "(disabled)"
		if store.SearchEnabled() {
			searchState = "enabled"
		}
		fmt.Printf("║  Template search : %-19s ║\n", searchState)
	} else {
		fmt.Printf("║  Catalog         : %-19s ║\n", "(disabled)")
	}
	printRow("Language", cfg.Dictation.Language)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
