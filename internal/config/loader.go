package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "deepgram"},
	"llm":        {"openai", "anyllm", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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
// Environment references of the form $VAR or ${VAR} are expanded before
// decoding, so secrets can stay out of the config file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Providers.PrimarySTT.Name == "" {
		errs = append(errs, errors.New("providers.primary_stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.PrimarySTT.Name)
	validateProviderName("stt", cfg.Providers.SecondarySTT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Reconcile.Mode != "" && !cfg.Reconcile.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("reconcile.mode %q is invalid; valid values: parallel, confidence", cfg.Reconcile.Mode))
	}
	if t := cfg.Reconcile.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("reconcile.confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Reconcile.ContextWords < 0 {
		errs = append(errs, fmt.Errorf("reconcile.context_words %d must not be negative", cfg.Reconcile.ContextWords))
	}

	if cfg.Providers.SecondarySTT.Name == "" {
		if cfg.Reconcile.Mode == ModeConfidence {
			slog.Warn("reconcile.mode is confidence but providers.secondary_stt is not configured; low-confidence spans cannot be re-transcribed")
		} else {
			slog.Warn("providers.secondary_stt is not configured; reconciliation degrades to single-pass transcription")
		}
	}
	if cfg.Reconcile.UseLLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("reconcile.use_llm is set but providers.llm is not configured"))
	}

	if cfg.Archive.PostgresDSN != "" {
		if cfg.Providers.Embeddings.Name == "" {
			slog.Warn("archive.postgres_dsn is set without providers.embeddings; transcripts will be stored without semantic search")
		} else if cfg.Archive.EmbeddingDimensions <= 0 {
			slog.Warn("providers.embeddings is configured but archive.embedding_dimensions is not set; defaulting to 1536")
		}
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
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unrecognised provider name, possibly a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
