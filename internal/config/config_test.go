package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
markets = ["0xaaa", "0xbbb"]

[scanner]
threshold = 0.995
scan_interval = "250ms"

[redis]
addr = "redis.internal:6379"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scanner.Threshold != 0.995 {
		t.Fatalf("threshold = %g, want 0.995", cfg.Scanner.Threshold)
	}
	if cfg.Scanner.ScanInterval.Duration != 250*time.Millisecond {
		t.Fatalf("scan_interval = %v, want 250ms", cfg.Scanner.ScanInterval.Duration)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.Markets) != 2 {
		t.Fatalf("markets = %v", cfg.Markets)
	}

	// Untouched fields keep their defaults.
	if cfg.Scanner.MinProfitPercent != 0.2 {
		t.Fatalf("min_profit_percent default lost: %g", cfg.Scanner.MinProfitPercent)
	}
	if cfg.Redis.QuoteTTL.Duration != 60*time.Second {
		t.Fatalf("quote_ttl default lost: %v", cfg.Redis.QuoteTTL.Duration)
	}
	if cfg.Feed.ReconnectBase.Duration != 5*time.Second || cfg.Feed.ReconnectMax.Duration != 60*time.Second {
		t.Fatalf("feed backoff defaults lost: %+v", cfg.Feed)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[redis]
addr = "from-file:6379"
`)

	t.Setenv("POLYARB_REDIS_ADDR", "from-env:6379")
	t.Setenv("POLYARB_SCANNER_THRESHOLD", "0.99")
	t.Setenv("POLYARB_SCANNER_NOTIFY_COOLDOWN", "90s")
	t.Setenv("POLYARB_MARKETS", "0xaaa, 0xbbb,0xccc")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Redis.Addr != "from-env:6379" {
		t.Fatalf("env did not override file: %q", cfg.Redis.Addr)
	}
	if cfg.Scanner.Threshold != 0.99 {
		t.Fatalf("threshold = %g, want 0.99", cfg.Scanner.Threshold)
	}
	if cfg.Scanner.NotifyCooldown.Duration != 90*time.Second {
		t.Fatalf("notify_cooldown = %v, want 90s", cfg.Scanner.NotifyCooldown.Duration)
	}
	if len(cfg.Markets) != 3 || cfg.Markets[1] != "0xbbb" {
		t.Fatalf("markets = %v", cfg.Markets)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Scanner.Threshold = 1.5
	cfg.Redis.Addr = ""
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config passed validation")
	}
	for _, want := range []string{"threshold", "redis", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("combined error missing %q: %v", want, err)
		}
	}
}

func TestValidateArchiveRequiresJournal(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.Journal.Enabled = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "journal") {
		t.Fatalf("archive without journal passed validation: %v", err)
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}
}
