// Command tandem is the hybrid transcription reconciliation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/tandemscribe/tandem/internal/archive"
	"github.com/tandemscribe/tandem/internal/config"
	"github.com/tandemscribe/tandem/internal/health"
	"github.com/tandemscribe/tandem/internal/hotword"
	"github.com/tandemscribe/tandem/internal/observe"
	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/internal/refine"
	"github.com/tandemscribe/tandem/internal/resilience"
	"github.com/tandemscribe/tandem/internal/server"
	"github.com/tandemscribe/tandem/pkg/provider/embeddings"
	ollamaembed "github.com/tandemscribe/tandem/pkg/provider/embeddings/ollama"
	oaembed "github.com/tandemscribe/tandem/pkg/provider/embeddings/openai"
	"github.com/tandemscribe/tandem/pkg/provider/llm"
	"github.com/tandemscribe/tandem/pkg/provider/llm/anyllm"
	oallm "github.com/tandemscribe/tandem/pkg/provider/llm/openai"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/provider/stt/deepgram"
	"github.com/tandemscribe/tandem/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tandem: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tandem: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tandem starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "tandem",
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

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	baseHotwords, err := loadBaseHotwords(cfg)
	if err != nil {
		slog.Error("failed to load hotword dictionary", "err", err)
		return 1
	}
	if len(baseHotwords) > 0 {
		slog.Info("hotword dictionary loaded", "terms", len(baseHotwords))
	}

	// The orchestrator keeps running when the secondary engine or the LLM is
	// down; the breaker wrappers just stop hammering a failing backend.
	orchOpts := []reconcile.Option{
		reconcile.WithMetrics(metrics),
		reconcile.WithLogger(logger),
	}
	if providers.secondarySTT != nil {
		wrapped := resilience.NewSTTFallback(
			providers.secondarySTT, providers.secondaryName, resilience.FallbackConfig{})
		orchOpts = append(orchOpts, reconcile.WithSecondary(providers.secondaryName, wrapped))
	}
	if providers.llm != nil {
		wrapped := resilience.NewLLMFallback(providers.llm, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		orchOpts = append(orchOpts, reconcile.WithRefiner(refine.New(wrapped)))
	}

	orch, err := reconcile.New(providers.primaryName, providers.primarySTT, orchOpts...)
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		return 1
	}

	probes := health.New()

	var store *archive.Store
	if cfg.Archive.PostgresDSN != "" {
		store, err = archive.NewStore(ctx, cfg.Archive.PostgresDSN, providers.embeddings, cfg.Archive.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to open transcript archive", "err", err)
			return 1
		}
		defer store.Close()
		probes.AddProbe("archive", store.Ping)
		slog.Info("transcript archive connected")
	}

	srvOpts := []server.Option{
		server.WithDefaults(cfg.Reconcile),
		server.WithBaseHotwords(baseHotwords),
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	}
	if store != nil {
		srvOpts = append(srvOpts, server.WithArchive(store))
	}
	srv := server.New(orch, probes, srvOpts...)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "tls", cfg.Server.TLS != nil)
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// builtProviders holds the instantiated provider set for this process.
type builtProviders struct {
	primaryName   string
	primarySTT    stt.Provider
	secondaryName string
	secondarySTT  stt.Provider
	llm           llm.Provider
	embeddings    embeddings.Provider
}

// registerBuiltinProviders wires the provider factories that ship with tandem
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to the API directly; everything else goes through any-llm.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anyllm", "anthropic", "gemini", "ollama",
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
			name := providerName
			if name == "anyllm" {
				name = optString(entry.Options, "backend")
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

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
}

// buildProviders instantiates every provider named in cfg. The primary STT
// engine is mandatory; everything else is optional.
func buildProviders(cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	ps := &builtProviders{primaryName: cfg.Providers.PrimarySTT.Name}

	p, err := reg.CreateSTT(cfg.Providers.PrimarySTT)
	if err != nil {
		return nil, fmt.Errorf("create primary stt provider %q: %w", ps.primaryName, err)
	}
	ps.primarySTT = p
	slog.Info("provider created", "kind", "stt", "role", "primary", "name", ps.primaryName)

	if name := cfg.Providers.SecondarySTT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.SecondarySTT)
		if err != nil {
			return nil, fmt.Errorf("create secondary stt provider %q: %w", name, err)
		}
		ps.secondaryName = name
		ps.secondarySTT = p
		slog.Info("provider created", "kind", "stt", "role", "secondary", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.llm = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// loadBaseHotwords merges the inline hotword list with the optional
// dictionary file.
func loadBaseHotwords(cfg *config.Config) ([]string, error) {
	dicts := [][]string{cfg.Reconcile.Hotwords}
	if path := cfg.Reconcile.HotwordsFile; path != "" {
		fileDict, err := hotword.LoadDictionary(path)
		if err != nil {
			return nil, err
		}
		dicts = append(dicts, fileDict)
	}
	return hotword.Merge(dicts...), nil
}

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

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
