// Package config defines the tickerwatch configuration and its validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TICKERWATCH_* environment
// variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Stream   StreamConfig   `toml:"stream"`
	Fallback FallbackConfig `toml:"fallback"`
	Throttle ThrottleConfig `toml:"throttle"`
	Notify   NotifyConfig   `toml:"notify"`
	Record   RecordConfig   `toml:"record"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig names the market data endpoints and the tracked symbols.
type ExchangeConfig struct {
	StreamURL string   `toml:"stream_url"`
	RESTURL   string   `toml:"rest_url"`
	Symbols   []string `toml:"symbols"`
	EventType string   `toml:"event_type"`
}

// StreamConfig tunes the streaming session and its reconnection policy.
type StreamConfig struct {
	PingInterval        duration `toml:"ping_interval"`
	ReadTimeout         duration `toml:"read_timeout"`
	HandshakeTimeout    duration `toml:"handshake_timeout"`
	WriteTimeout        duration `toml:"write_timeout"`
	ReadLimit           int64    `toml:"read_limit"`
	MaxAttempts         int      `toml:"max_attempts"`
	BackoffCap          duration `toml:"backoff_cap"`
	MaxRejectionBackoff duration `toml:"max_rejection_backoff"`
	JitterMax           duration `toml:"jitter_max"`
}

// FallbackConfig tunes the REST polling fallback.
type FallbackConfig struct {
	Interval       duration `toml:"interval"`
	RequestTimeout duration `toml:"request_timeout"`
}

// ThrottleConfig holds the report and alert thresholds.
type ThrottleConfig struct {
	ReportInterval       duration `toml:"report_interval"`
	HourlyReportInterval duration `toml:"hourly_report_interval"`
	MinChangePercent     float64  `toml:"min_change_percent"`
	MinChangeVolume      float64  `toml:"min_change_volume"`
	AlertThreshold       float64  `toml:"alert_threshold"`
	AlertCooldown        duration `toml:"alert_cooldown"`
}

// NotifyConfig holds notification channel credentials and delivery policy.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPI       string   `toml:"telegram_api"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Timeout           duration `toml:"timeout"`
	RetryAttempts     int      `toml:"retry_attempts"`
	RetryDelay        duration `toml:"retry_delay"`
	QueueSize         int      `toml:"queue_size"`
	RateLimit         int      `toml:"rate_limit"`
	RateWindow        duration `toml:"rate_window"`
}

// RecordConfig controls the durable observation log.
type RecordConfig struct {
	CSVDir         string   `toml:"csv_dir"`
	CSVPrefix      string   `toml:"csv_prefix"`
	SampleInterval duration `toml:"sample_interval"`
	QueueSize      int      `toml:"queue_size"`
	Postgres       bool     `toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	ObservationTTL duration `toml:"observation_ttl"`
}

// S3Config holds S3-compatible object storage parameters for archiving
// rotated record files.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// duration wraps time.Duration so TOML strings like "15s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in
// config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			StreamURL: "wss://stream.binance.com:9443",
			RESTURL:   "https://api.binance.com",
			Symbols:   []string{"BTCUSDT", "ETHUSDT"},
			EventType: "24hrTicker",
		},
		Stream: StreamConfig{
			PingInterval:        duration{15 * time.Second},
			ReadTimeout:         duration{60 * time.Second},
			HandshakeTimeout:    duration{10 * time.Second},
			WriteTimeout:        duration{5 * time.Second},
			ReadLimit:           1 << 20,
			MaxAttempts:         50,
			BackoffCap:          duration{60 * time.Second},
			MaxRejectionBackoff: duration{300 * time.Second},
			JitterMax:           duration{5 * time.Second},
		},
		Fallback: FallbackConfig{
			Interval:       duration{30 * time.Second},
			RequestTimeout: duration{10 * time.Second},
		},
		Throttle: ThrottleConfig{
			ReportInterval:       duration{15 * time.Minute},
			HourlyReportInterval: duration{time.Hour},
			MinChangePercent:     0.5,
			MinChangeVolume:      0.1,
			AlertThreshold:       5.0,
			AlertCooldown:        duration{15 * time.Minute},
		},
		Notify: NotifyConfig{
			TelegramAPI:   "https://api.telegram.org",
			Events:        []string{"alert", "report", "hourly_report"},
			Timeout:       duration{10 * time.Second},
			RetryAttempts: 3,
			RetryDelay:    duration{2 * time.Second},
			QueueSize:     64,
			RateLimit:     20,
			RateWindow:    duration{time.Minute},
		},
		Record: RecordConfig{
			CSVDir:         "data",
			CSVPrefix:      "tickers",
			SampleInterval: duration{60 * time.Second},
			QueueSize:      1024,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tickerwatch",
			User:          "tickerwatch",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			MaxRetries:     3,
			KeyPrefix:      "tickerwatch",
			ObservationTTL: duration{10 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
			Prefix:         "tickerwatch/records",
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"full":   true,
	"stream": true,
	"poll":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Normalize upper-cases and de-duplicates the symbol list in place.
func (c *Config) Normalize() {
	seen := make(map[string]bool, len(c.Exchange.Symbols))
	out := c.Exchange.Symbols[:0]
	for _, s := range c.Exchange.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	c.Exchange.Symbols = out
	c.Mode = strings.ToLower(c.Mode)
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, stream, poll)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if len(c.Exchange.Symbols) == 0 {
		errs = append(errs, "exchange: symbols must not be empty")
	}
	if u, err := url.Parse(c.Exchange.StreamURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Sprintf("exchange: stream_url must be a ws:// or wss:// URL, got %q", c.Exchange.StreamURL))
	}
	if u, err := url.Parse(c.Exchange.RESTURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("exchange: rest_url must be an http(s) URL, got %q", c.Exchange.RESTURL))
	}

	// Stream
	if c.Stream.PingInterval.Duration <= 0 {
		errs = append(errs, "stream: ping_interval must be > 0")
	}
	if c.Stream.ReadTimeout.Duration <= c.Stream.PingInterval.Duration {
		errs = append(errs, "stream: read_timeout must exceed ping_interval")
	}
	if c.Stream.MaxAttempts < 1 {
		errs = append(errs, "stream: max_attempts must be >= 1")
	}
	if c.Stream.BackoffCap.Duration <= 0 {
		errs = append(errs, "stream: backoff_cap must be > 0")
	}
	if c.Stream.MaxRejectionBackoff.Duration < c.Stream.BackoffCap.Duration {
		errs = append(errs, "stream: max_rejection_backoff must be >= backoff_cap")
	}
	if c.Stream.JitterMax.Duration < 0 {
		errs = append(errs, "stream: jitter_max must be >= 0")
	}

	// Fallback
	if c.Fallback.Interval.Duration <= 0 {
		errs = append(errs, "fallback: interval must be > 0")
	}
	if c.Fallback.RequestTimeout.Duration <= 0 {
		errs = append(errs, "fallback: request_timeout must be > 0")
	}

	// Throttle
	if c.Throttle.ReportInterval.Duration <= 0 {
		errs = append(errs, "throttle: report_interval must be > 0")
	}
	if c.Throttle.HourlyReportInterval.Duration <= 0 {
		errs = append(errs, "throttle: hourly_report_interval must be > 0")
	}
	if c.Throttle.MinChangePercent < 0 || c.Throttle.MinChangeVolume < 0 {
		errs = append(errs, "throttle: min_change_percent and min_change_volume must be >= 0")
	}
	if c.Throttle.AlertThreshold <= 0 {
		errs = append(errs, "throttle: alert_threshold must be > 0")
	}
	if c.Throttle.AlertCooldown.Duration < 0 {
		errs = append(errs, "throttle: alert_cooldown must be >= 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.RetryAttempts < 1 {
		errs = append(errs, "notify: retry_attempts must be >= 1")
	}
	if c.Notify.QueueSize < 1 {
		errs = append(errs, "notify: queue_size must be >= 1")
	}
	for _, e := range c.Notify.Events {
		switch e {
		case "alert", "report", "hourly_report":
		default:
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: alert, report, hourly_report)", e))
		}
	}

	// Record
	if c.Record.CSVDir == "" {
		errs = append(errs, "record: csv_dir must not be empty")
	}
	if c.Record.QueueSize < 1 {
		errs = append(errs, "record: queue_size must be >= 1")
	}

	// Postgres, only when the observation log is mirrored there.
	if c.Record.Postgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
