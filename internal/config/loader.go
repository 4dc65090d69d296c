package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults, loads .env when present,
// applies TICKERWATCH_* overrides and normalises the symbol list. An empty
// path skips the file. The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Normalize()

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the TOML file. Unset variables leave the field alone.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.StreamURL, "TICKERWATCH_EXCHANGE_STREAM_URL")
	setStr(&cfg.Exchange.RESTURL, "TICKERWATCH_EXCHANGE_REST_URL")
	setStringSlice(&cfg.Exchange.Symbols, "TICKERWATCH_EXCHANGE_SYMBOLS")

	// ── Stream ──
	setDuration(&cfg.Stream.PingInterval, "TICKERWATCH_STREAM_PING_INTERVAL")
	setDuration(&cfg.Stream.ReadTimeout, "TICKERWATCH_STREAM_READ_TIMEOUT")
	setDuration(&cfg.Stream.WriteTimeout, "TICKERWATCH_STREAM_WRITE_TIMEOUT")
	setDuration(&cfg.Stream.HandshakeTimeout, "TICKERWATCH_STREAM_HANDSHAKE_TIMEOUT")
	setInt(&cfg.Stream.MaxAttempts, "TICKERWATCH_STREAM_MAX_ATTEMPTS")
	setDuration(&cfg.Stream.BackoffCap, "TICKERWATCH_STREAM_BACKOFF_CAP")
	setDuration(&cfg.Stream.MaxRejectionBackoff, "TICKERWATCH_STREAM_MAX_REJECTION_BACKOFF")
	setDuration(&cfg.Stream.JitterMax, "TICKERWATCH_STREAM_JITTER_MAX")

	// ── Fallback ──
	setDuration(&cfg.Fallback.Interval, "TICKERWATCH_FALLBACK_INTERVAL")
	setDuration(&cfg.Fallback.RequestTimeout, "TICKERWATCH_FALLBACK_REQUEST_TIMEOUT")

	// ── Throttle ──
	setDuration(&cfg.Throttle.ReportInterval, "TICKERWATCH_THROTTLE_REPORT_INTERVAL")
	setDuration(&cfg.Throttle.HourlyReportInterval, "TICKERWATCH_THROTTLE_HOURLY_REPORT_INTERVAL")
	setFloat64(&cfg.Throttle.MinChangePercent, "TICKERWATCH_THROTTLE_MIN_CHANGE_PERCENT")
	setFloat64(&cfg.Throttle.MinChangeVolume, "TICKERWATCH_THROTTLE_MIN_CHANGE_VOLUME")
	setFloat64(&cfg.Throttle.AlertThreshold, "TICKERWATCH_THROTTLE_ALERT_THRESHOLD")
	setDuration(&cfg.Throttle.AlertCooldown, "TICKERWATCH_THROTTLE_ALERT_COOLDOWN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TICKERWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramChatID, "TICKERWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID") // compatibility alias
	setStr(&cfg.Notify.DiscordWebhookURL, "TICKERWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TICKERWATCH_NOTIFY_EVENTS")

	// ── Record ──
	setStr(&cfg.Record.CSVDir, "TICKERWATCH_RECORD_CSV_DIR")
	setDuration(&cfg.Record.SampleInterval, "TICKERWATCH_RECORD_SAMPLE_INTERVAL")
	setBool(&cfg.Record.Postgres, "TICKERWATCH_RECORD_POSTGRES")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TICKERWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TICKERWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TICKERWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TICKERWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TICKERWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TICKERWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TICKERWATCH_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "TICKERWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TICKERWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TICKERWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TICKERWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TICKERWATCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "TICKERWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TICKERWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TICKERWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TICKERWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "TICKERWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TICKERWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TICKERWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "TICKERWATCH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TICKERWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TICKERWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TICKERWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TICKERWATCH_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "TICKERWATCH_MODE")
	setStr(&cfg.LogLevel, "TICKERWATCH_LOG_LEVEL")
}

// Typed env helpers. Each mutates dst only when the variable is set and
// parses.

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
