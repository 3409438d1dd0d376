package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Router.QuoteTimeout != 3*time.Second {
		t.Errorf("expected default quote timeout 3s, got %v", cfg.Router.QuoteTimeout)
	}
	if cfg.Router.MaxExecuteAttempts != 3 {
		t.Errorf("expected default 3 execute attempts, got %d", cfg.Router.MaxExecuteAttempts)
	}
	if cfg.Router.BreakerThreshold != 5 {
		t.Errorf("expected default breaker threshold 5, got %d", cfg.Router.BreakerThreshold)
	}
	if cfg.Monitor.Interval != time.Minute {
		t.Errorf("expected default monitor interval 60s, got %v", cfg.Monitor.Interval)
	}
	if cfg.Monitor.MaxCloseFailures != 3 {
		t.Errorf("expected default 3 close failures, got %d", cfg.Monitor.MaxCloseFailures)
	}
	if cfg.Strategy.MinConfidence != 0.55 {
		t.Errorf("expected default confidence floor 0.55, got %f", cfg.Strategy.MinConfidence)
	}
	if cfg.Venues.Primary.Name != "jupiter" || cfg.Venues.Fallback.Name != "raydium" {
		t.Errorf("expected default venues jupiter/raydium, got %s/%s",
			cfg.Venues.Primary.Name, cfg.Venues.Fallback.Name)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
router:
  quote_timeout: 5s
  max_execute_attempts: 2
engine:
  take_profit_pct: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Router.QuoteTimeout != 5*time.Second {
		t.Errorf("expected overridden quote timeout, got %v", cfg.Router.QuoteTimeout)
	}
	if cfg.Router.MaxExecuteAttempts != 2 {
		t.Errorf("expected overridden attempts, got %d", cfg.Router.MaxExecuteAttempts)
	}
	if cfg.Engine.TakeProfitPct != 30 {
		t.Errorf("expected overridden take profit, got %f", cfg.Engine.TakeProfitPct)
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"same venue names", "venues:\n  fallback:\n    name: jupiter\n"},
		{"zero quote timeout", "router:\n  quote_timeout: 0s\n"},
		{"stop loss over 100", "engine:\n  stop_loss_pct: 150\n"},
		{"bad r2 threshold", "strategy:\n  trend_r2_threshold: 1.5\n"},
		{"decision faster than monitor", "scheduler:\n  decision_interval: 10s\n"},
	}

	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
