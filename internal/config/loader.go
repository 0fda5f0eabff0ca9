package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.WsURL, "POLYARB_POLYMARKET_WS_URL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "POLYARB_REDIS_QUOTE_TTL")

	// ── Feed ──
	setDuration(&cfg.Feed.ReconnectBase, "POLYARB_FEED_RECONNECT_BASE")
	setDuration(&cfg.Feed.ReconnectMax, "POLYARB_FEED_RECONNECT_MAX")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.Threshold, "POLYARB_SCANNER_THRESHOLD")
	setFloat64(&cfg.Scanner.MinProfitPercent, "POLYARB_SCANNER_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Scanner.MinLiquidityUSD, "POLYARB_SCANNER_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Scanner.MaxPositionUSD, "POLYARB_SCANNER_MAX_POSITION_USD")
	setDuration(&cfg.Scanner.ScanInterval, "POLYARB_SCANNER_SCAN_INTERVAL")
	setDuration(&cfg.Scanner.NotifyCooldown, "POLYARB_SCANNER_NOTIFY_COOLDOWN")

	// ── Exec ──
	setBool(&cfg.Exec.Enabled, "POLYARB_EXEC_ENABLED")
	setFloat64(&cfg.Exec.FeeRate, "POLYARB_EXEC_FEE_RATE")
	setFloat64(&cfg.Exec.MaxSlippagePercent, "POLYARB_EXEC_MAX_SLIPPAGE_PERCENT")
	setFloat64(&cfg.Exec.TargetVolumeUSD, "POLYARB_EXEC_TARGET_VOLUME_USD")

	// ── Journal ──
	setBool(&cfg.Journal.Enabled, "POLYARB_JOURNAL_ENABLED")
	setStr(&cfg.Journal.DSN, "POLYARB_JOURNAL_DSN")
	setStr(&cfg.Journal.Host, "POLYARB_JOURNAL_HOST")
	setInt(&cfg.Journal.Port, "POLYARB_JOURNAL_PORT")
	setStr(&cfg.Journal.Database, "POLYARB_JOURNAL_DATABASE")
	setStr(&cfg.Journal.User, "POLYARB_JOURNAL_USER")
	setStr(&cfg.Journal.Password, "POLYARB_JOURNAL_PASSWORD")
	setStr(&cfg.Journal.SSLMode, "POLYARB_JOURNAL_SSL_MODE")
	setInt(&cfg.Journal.PoolMaxConns, "POLYARB_JOURNAL_POOL_MAX_CONNS")
	setInt(&cfg.Journal.PoolMinConns, "POLYARB_JOURNAL_POOL_MIN_CONNS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYARB_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "POLYARB_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "POLYARB_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "POLYARB_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "POLYARB_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "POLYARB_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "POLYARB_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "POLYARB_ARCHIVE_FORCE_PATH_STYLE")
	setDuration(&cfg.Archive.Interval, "POLYARB_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "POLYARB_ARCHIVE_RETENTION_DAYS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "POLYARB_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "POLYARB_METRICS_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStringSlice(&cfg.Markets, "POLYARB_MARKETS")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
