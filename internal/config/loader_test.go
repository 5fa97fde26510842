package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/parley/tls.crt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for half-configured TLS, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_NegativeSessionTunables(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  suggestion_min_words: -3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative suggestion_min_words, got nil")
	}
	if !strings.Contains(err.Error(), "suggestion_min_words") {
		t.Errorf("error should mention suggestion_min_words, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
session:
  suggestion_min_words: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "suggestion_min_words") {
		t.Errorf("error should mention suggestion_min_words, got: %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_levell: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_ParsesDurations(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  watchdog_interval: 30s
  inactivity_timeout: 4m
  suggestion_interval: 1m
  suggestion_window: 3m
  suggestion_min_words: 50
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Session.WatchdogInterval.Std(); got != 30*time.Second {
		t.Errorf("watchdog_interval = %v, want 30s", got)
	}
	if got := cfg.Session.InactivityTimeout.Std(); got != 4*time.Minute {
		t.Errorf("inactivity_timeout = %v, want 4m", got)
	}
	if cfg.Session.SuggestionMinWords != 50 {
		t.Errorf("suggestion_min_words = %d, want 50", cfg.Session.SuggestionMinWords)
	}
}

func TestLoadFromReader_RejectsMalformedDuration(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  watchdog_interval: soon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for malformed duration, got nil")
	}
}

func TestLoadFromReader_ExpandsSecretEnvVars(t *testing.T) {
	t.Setenv("PARLEY_TEST_API_KEY", "sk-from-env")
	t.Setenv("PARLEY_TEST_DSN", "postgres://localhost/parley")
	yaml := `
providers:
  stt:
    name: openai
    api_key: ${PARLEY_TEST_API_KEY}
database:
  postgres_dsn: ${PARLEY_TEST_DSN}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want value from env", cfg.Providers.STT.APIKey)
	}
	if cfg.Database.PostgresDSN != "postgres://localhost/parley" {
		t.Errorf("postgres_dsn = %q, want value from env", cfg.Database.PostgresDSN)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	for _, kind := range []string{"llm", "stt", "embeddings"} {
		names := config.ValidProviderNames[kind]
		if len(names) == 0 {
			t.Fatalf("ValidProviderNames[%q] should not be empty", kind)
		}
	}
	// Check that "openai" is in the LLM list.
	found := false
	for _, n := range config.ValidProviderNames["llm"] {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
