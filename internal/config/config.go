// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYARB_* environment
// variables. All values are immutable for a process lifetime.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Redis      RedisConfig      `toml:"redis"`
	Feed       FeedConfig       `toml:"feed"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Exec       ExecConfig       `toml:"exec"`
	Journal    JournalConfig    `toml:"journal"`
	Archive    ArchiveConfig    `toml:"archive"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Notify     NotifyConfig     `toml:"notify"`

	// Markets is the initial watch list of market IDs.
	Markets  []string `toml:"markets"`
	LogLevel string   `toml:"log_level"`
}

// PolymarketConfig holds the CLOB feed endpoint.
type PolymarketConfig struct {
	WsURL string `toml:"ws_url"`
}

// RedisConfig holds Redis connection parameters and the quote TTL.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// FeedConfig holds reconnect behavior for the WebSocket ingestor.
type FeedConfig struct {
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
}

// ScannerConfig holds the detection parameters.
type ScannerConfig struct {
	// Threshold is the strict upper bound on yes+no; a sum at or above it
	// is not an opportunity. Must be in (0, 1) exclusive.
	Threshold        float64  `toml:"threshold"`
	MinProfitPercent float64  `toml:"min_profit_percent"`
	MinLiquidityUSD  float64  `toml:"min_liquidity_usd"`
	MaxPositionUSD   float64  `toml:"max_position_usd"`
	ScanInterval     duration `toml:"scan_interval"`
	NotifyCooldown   duration `toml:"notify_cooldown"`
}

// ExecConfig holds parameters for the paper execution hook.
type ExecConfig struct {
	Enabled            bool    `toml:"enabled"`
	FeeRate            float64 `toml:"fee_rate"`
	MaxSlippagePercent float64 `toml:"max_slippage_percent"`
	TargetVolumeUSD    float64 `toml:"target_volume_usd"`
}

// JournalConfig holds PostgreSQL connection parameters for the opportunity
// journal.
type JournalConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// ArchiveConfig holds S3-compatible object storage parameters for the
// opportunity archiver.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Interval       duration `toml:"interval"`
	RetentionDays  int      `toml:"retention_days"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "100ms", "60s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "100ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			WsURL: "wss://ws-subscriptions-clob.polymarket.com/ws",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			QuoteTTL:   duration{60 * time.Second},
		},
		Feed: FeedConfig{
			ReconnectBase: duration{5 * time.Second},
			ReconnectMax:  duration{60 * time.Second},
		},
		Scanner: ScannerConfig{
			Threshold:        0.998,
			MinProfitPercent: 0.2,
			MinLiquidityUSD:  50,
			MaxPositionUSD:   100,
			ScanInterval:     duration{100 * time.Millisecond},
			NotifyCooldown:   duration{60 * time.Second},
		},
		Exec: ExecConfig{
			Enabled:            false,
			FeeRate:            0.002,
			MaxSlippagePercent: 0.5,
			TargetVolumeUSD:    100,
		},
		Journal: JournalConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "polyarb",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
			Interval:       duration{24 * time.Hour},
			RetentionDays:  90,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "trade", "critical"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.WsURL == "" {
		errs = append(errs, "polymarket: ws_url must not be empty")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.QuoteTTL.Duration <= 0 {
		errs = append(errs, "redis: quote_ttl must be > 0")
	}

	if c.Feed.ReconnectBase.Duration <= 0 {
		errs = append(errs, "feed: reconnect_base must be > 0")
	}
	if c.Feed.ReconnectMax.Duration < c.Feed.ReconnectBase.Duration {
		errs = append(errs, "feed: reconnect_max must be >= reconnect_base")
	}

	if c.Scanner.Threshold <= 0 || c.Scanner.Threshold >= 1 {
		errs = append(errs, fmt.Sprintf("scanner: threshold must be in (0, 1), got %g", c.Scanner.Threshold))
	}
	if c.Scanner.MinProfitPercent < 0 {
		errs = append(errs, "scanner: min_profit_percent must be >= 0")
	}
	if c.Scanner.MinLiquidityUSD < 0 {
		errs = append(errs, "scanner: min_liquidity_usd must be >= 0")
	}
	if c.Scanner.MaxPositionUSD <= 0 {
		errs = append(errs, "scanner: max_position_usd must be > 0")
	}
	if c.Scanner.ScanInterval.Duration <= 0 {
		errs = append(errs, "scanner: scan_interval must be > 0")
	}
	if c.Scanner.NotifyCooldown.Duration < 0 {
		errs = append(errs, "scanner: notify_cooldown must be >= 0")
	}

	if c.Exec.Enabled {
		if c.Exec.FeeRate < 0 {
			errs = append(errs, "exec: fee_rate must be >= 0")
		}
		if c.Exec.TargetVolumeUSD <= 0 {
			errs = append(errs, "exec: target_volume_usd must be > 0 when enabled")
		}
	}

	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DSN) == "" {
		if c.Journal.Host == "" {
			errs = append(errs, "journal: host must not be empty (or set journal.dsn)")
		}
		if c.Journal.Port <= 0 || c.Journal.Port > 65535 {
			errs = append(errs, fmt.Sprintf("journal: port must be 1-65535, got %d", c.Journal.Port))
		}
		if c.Journal.Database == "" {
			errs = append(errs, "journal: database must not be empty")
		}
	}

	if c.Archive.Enabled {
		if !c.Journal.Enabled {
			errs = append(errs, "archive: requires journal.enabled = true")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
