package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesLedgerDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LEDGER_MAX_RETRIES", "")
	t.Setenv("LEDGER_RETRY_DELAY", "")
	t.Setenv("LEDGER_ENABLED", "")
	t.Setenv("LEDGER_FINALIZE_TIMEOUT", "")
	t.Setenv("LEDGER_RECONCILE_ATTEMPTS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ledger.MaxRetries != 3 {
		t.Fatalf("expected default ledger retries 3, got %d", cfg.Ledger.MaxRetries)
	}
	if cfg.Ledger.RetryDelay != 5*time.Second {
		t.Fatalf("expected default ledger retry delay 5s, got %v", cfg.Ledger.RetryDelay)
	}
	if cfg.Ledger.FinalizeTimeout != 15*time.Second || cfg.Ledger.ReconcileAttempts != 20 {
		t.Fatalf("unexpected finalize defaults %v, %d", cfg.Ledger.FinalizeTimeout, cfg.Ledger.ReconcileAttempts)
	}
	if cfg.Ledger.Enabled() {
		t.Fatalf("ledger must be disabled by default")
	}
}

func TestLedgerEnabledRequiresEveryCredential(t *testing.T) {
	cfg := LedgerConfig{FeatureEnabled: true, Endpoint: "http://ledger", Credential: "key"}
	if cfg.Enabled() {
		t.Fatalf("expected disabled without registry address")
	}
	cfg.RegistryAddress = "0xregistry"
	if !cfg.Enabled() {
		t.Fatalf("expected enabled with flag, endpoint, credential and registry")
	}
	cfg.FeatureEnabled = false
	if cfg.Enabled() {
		t.Fatalf("expected disabled without feature flag")
	}
}

func TestLoadParsesDurationsAsSecondsOrGoSyntax(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LEDGER_RETRY_DELAY", "7")
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ledger.RetryDelay != 7*time.Second {
		t.Fatalf("expected 7s, got %v", cfg.Ledger.RetryDelay)
	}
	if cfg.ReconcileInterval != 90*time.Second {
		t.Fatalf("expected 90s, got %v", cfg.ReconcileInterval)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadUsesYAMLOverlayBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "ledger_enabled: true\nledger_endpoint: http://ledger.local\nlog_level: debug\napi_port: 9000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("API_PORT", "")
	t.Setenv("LEDGER_ENABLED", "")
	t.Setenv("LEDGER_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Ledger.FeatureEnabled || cfg.Ledger.Endpoint != "http://ledger.local" {
		t.Fatalf("expected overlay ledger settings, got %+v", cfg.Ledger)
	}
	if cfg.APIPort != "9000" {
		t.Fatalf("expected overlay api port, got %q", cfg.APIPort)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("environment must win over overlay, got %q", cfg.LogLevel)
	}
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
