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
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"openai", "whisper", "deepgram"},
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

// LoadFromReader decodes a YAML config from r, expands environment variable
// references in secret-bearing fields, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets applies ${ENV_VAR} expansion to the fields that commonly hold
// credentials, so keys can stay out of the config file itself.
func expandSecrets(cfg *Config) {
	cfg.Providers.LLM.APIKey = os.ExpandEnv(cfg.Providers.LLM.APIKey)
	cfg.Providers.STT.APIKey = os.ExpandEnv(cfg.Providers.STT.APIKey)
	cfg.Providers.Embeddings.APIKey = os.ExpandEnv(cfg.Providers.Embeddings.APIKey)
	cfg.Database.PostgresDSN = os.ExpandEnv(cfg.Database.PostgresDSN)
	cfg.Vault.MasterKey = os.ExpandEnv(cfg.Vault.MasterKey)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; live transcription will be unavailable until a tenant key is provided")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; question suggestions and meeting summaries will be unavailable")
	}

	// Embeddings ↔ database dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1536")
	}

	// Database availability
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; sessions and transcripts will be kept in memory only")
	}

	// Vault
	if cfg.Vault.MasterKey == "" {
		slog.Warn("vault.master_key is empty; per-tenant provider credentials cannot be stored")
	}

	// Session tunables
	for _, d := range []struct {
		field string
		value Duration
	}{
		{"session.watchdog_interval", cfg.Session.WatchdogInterval},
		{"session.inactivity_timeout", cfg.Session.InactivityTimeout},
		{"session.suggestion_interval", cfg.Session.SuggestionInterval},
		{"session.suggestion_window", cfg.Session.SuggestionWindow},
		{"session.finalize_timeout", cfg.Session.FinalizeTimeout},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.field))
		}
	}
	if cfg.Session.SampleRate < 0 {
		errs = append(errs, errors.New("session.sample_rate must not be negative"))
	}
	if cfg.Session.SuggestionMinWords < 0 {
		errs = append(errs, errors.New("session.suggestion_min_words must not be negative"))
	}
	if cfg.Session.WatchdogInterval > 0 && cfg.Session.InactivityTimeout > 0 &&
		cfg.Session.WatchdogInterval > cfg.Session.InactivityTimeout {
		slog.Warn("session.watchdog_interval exceeds session.inactivity_timeout; auto-stop will fire late",
			"watchdog_interval", cfg.Session.WatchdogInterval.Std(),
			"inactivity_timeout", cfg.Session.InactivityTimeout.Std(),
		)
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
