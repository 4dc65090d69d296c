package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.Stream.PingInterval.Duration)
	assert.Equal(t, 50, cfg.Stream.MaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.Stream.MaxRejectionBackoff.Duration)
	assert.Equal(t, 15*time.Minute, cfg.Throttle.ReportInterval.Duration)
	assert.Equal(t, 5.0, cfg.Throttle.AlertThreshold)
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "stream"

[exchange]
symbols = ["btcusdt", " solusdt ", "BTCUSDT"]

[throttle]
alert_threshold = 3.5
alert_cooldown = "90s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stream", cfg.Mode)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, cfg.Exchange.Symbols)
	assert.Equal(t, 3.5, cfg.Throttle.AlertThreshold)
	assert.Equal(t, 90*time.Second, cfg.Throttle.AlertCooldown.Duration)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Fallback.Interval.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "[stream]\nping_interval = \"soon\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TICKERWATCH_EXCHANGE_SYMBOLS", "adausdt, xrpusdt")
	t.Setenv("TICKERWATCH_STREAM_MAX_ATTEMPTS", "7")
	t.Setenv("TICKERWATCH_THROTTLE_REPORT_INTERVAL", "5m")
	t.Setenv("TICKERWATCH_NOTIFY_TELEGRAM_TOKEN", "tok")
	t.Setenv("TICKERWATCH_NOTIFY_TELEGRAM_CHAT_ID", "42")
	t.Setenv("TICKERWATCH_REDIS_ENABLED", "true")
	t.Setenv("TICKERWATCH_MODE", "POLL")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"ADAUSDT", "XRPUSDT"}, cfg.Exchange.Symbols)
	assert.Equal(t, 7, cfg.Stream.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Throttle.ReportInterval.Duration)
	assert.Equal(t, "tok", cfg.Notify.TelegramToken)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "poll", cfg.Mode)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesStreamTimings(t *testing.T) {
	t.Setenv("TICKERWATCH_STREAM_JITTER_MAX", "2s")
	t.Setenv("TICKERWATCH_STREAM_WRITE_TIMEOUT", "3s")
	t.Setenv("TICKERWATCH_STREAM_HANDSHAKE_TIMEOUT", "4s")
	t.Setenv("TICKERWATCH_FALLBACK_REQUEST_TIMEOUT", "6s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Stream.JitterMax.Duration)
	assert.Equal(t, 3*time.Second, cfg.Stream.WriteTimeout.Duration)
	assert.Equal(t, 4*time.Second, cfg.Stream.HandshakeTimeout.Duration)
	assert.Equal(t, 6*time.Second, cfg.Fallback.RequestTimeout.Duration)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrideIgnoresUnparsable(t *testing.T) {
	t.Setenv("TICKERWATCH_STREAM_MAX_ATTEMPTS", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Stream.MaxAttempts)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Exchange.Symbols = nil
	cfg.Exchange.StreamURL = "https://stream.example.com"
	cfg.Stream.MaxAttempts = 0
	cfg.Stream.ReadTimeout = duration{time.Second}
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.Events = []string{"alert", "digest"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"symbols must not be empty",
		"stream_url must be a ws:// or wss:// URL",
		"max_attempts must be >= 1",
		"read_timeout must exceed ping_interval",
		"telegram_token and telegram_chat_id must be set together",
		`unknown event "digest"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate(), "disabled backends are not checked")

	cfg.Record.Postgres = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host must not be empty")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "secret-token"
	cfg.S3.SecretKey = "s3-secret"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Empty(t, out.Postgres.Password)
	assert.Equal(t, "secret-token", cfg.Notify.TelegramToken)

	out.Exchange.Symbols[0] = "CHANGED"
	assert.Equal(t, "BTCUSDT", cfg.Exchange.Symbols[0])
}
