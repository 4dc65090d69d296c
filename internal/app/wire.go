package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/tickerwatch/internal/blob/s3"
	"github.com/alanyoungcy/tickerwatch/internal/cache/redis"
	"github.com/alanyoungcy/tickerwatch/internal/config"
	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/feed"
	"github.com/alanyoungcy/tickerwatch/internal/market"
	"github.com/alanyoungcy/tickerwatch/internal/notify"
	"github.com/alanyoungcy/tickerwatch/internal/record"
	"github.com/alanyoungcy/tickerwatch/internal/server/handler"
	"github.com/alanyoungcy/tickerwatch/internal/store/postgres"
	"github.com/alanyoungcy/tickerwatch/internal/throttle"
)

// Dependencies bundles what the run modes need. Optional backends are nil
// when disabled.
type Dependencies struct {
	Store    *market.Store
	Throttle *throttle.Throttle
	Stats    *feed.Stats
	Batch    *feed.Batch

	// Records is the head of the record chain: sampler, async writer, then
	// the fan-out over CSV and Postgres.
	Records      domain.RecordStore
	RecordWriter *record.AsyncWriter
	CSV          *record.CSVStore
	Archiver     *s3blob.Archiver

	Notifier   *notify.Notifier
	Dispatcher *notify.AsyncDispatcher

	Cache       *redis.ObservationCache
	Bus         *redis.EventBus
	RateLimiter domain.RateLimiter

	History      handler.HistoryReader
	Latest       []handler.LatestReader
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs every dependency from cfg and returns a cleanup function
// that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Store: market.NewStore(),
		Throttle: throttle.New(throttle.Config{
			ReportInterval:       cfg.Throttle.ReportInterval.Duration,
			HourlyReportInterval: cfg.Throttle.HourlyReportInterval.Duration,
			MinChangePercent:     cfg.Throttle.MinChangePercent,
			MinChangeVolume:      cfg.Throttle.MinChangeVolume,
			AlertThreshold:       cfg.Throttle.AlertThreshold,
			AlertCooldown:        cfg.Throttle.AlertCooldown.Duration,
		}),
		Stats:        &feed.Stats{},
		Batch:        feed.NewBatch(cfg.Exchange.Symbols),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- PostgreSQL (only when the observation log is mirrored there) ---
	var pgSink *postgres.ObservationStore
	var notificationLog *postgres.NotificationStore
	if cfg.Record.Postgres {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		pgSink = postgres.NewObservationStore(pool)
		notificationLog = postgres.NewNotificationStore(pool)
		deps.History = pgSink
		deps.Latest = append(deps.Latest, pgSink)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewObservationCache(redisClient, cfg.Redis.ObservationTTL.Duration)
		// The cache is fresher than the recorded log, so it is asked first.
		deps.Latest = append([]handler.LatestReader{deps.Cache}, deps.Latest...)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 archive of rotated record files ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			s3Client.Prefix(),
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Record chain ---
	csvStore, err := record.NewCSVStore(cfg.Record.CSVDir, cfg.Record.CSVPrefix, func(path string) {
		if deps.Archiver != nil {
			deps.Archiver.Enqueue(path)
		}
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: csv store: %w", err)
	}
	closers = append(closers, func() {
		if err := csvStore.Close(); err != nil {
			logger.Warn("close csv store", slog.String("error", err.Error()))
		}
	})
	deps.CSV = csvStore

	sinks := []record.Sink{{Name: "csv", Store: csvStore}}
	if pgSink != nil {
		sinks = append(sinks, record.Sink{Name: "postgres", Store: pgSink})
	}
	deps.RecordWriter = record.NewAsyncWriter(record.NewFanout(sinks...), cfg.Record.QueueSize, logger)
	deps.Records = record.NewSampler(deps.RecordWriter, cfg.Record.SampleInterval.Duration)

	// --- Notifications ---
	deps.Notifier = newNotifier(cfg.Notify, deps.RateLimiter, logger)
	if !deps.Notifier.Enabled() {
		logger.WarnContext(ctx, "no notification senders configured; reports will not be delivered")
	}
	deps.Dispatcher = notify.NewAsyncDispatcher(deps.Notifier, cfg.Notify.QueueSize, logger)
	if notificationLog != nil {
		deps.Dispatcher.SetDeliveryLog(notificationLog)
	}

	return deps, cleanup, nil
}

func newNotifier(cfg config.NotifyConfig, limiter domain.RateLimiter, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.TelegramAPI,
			cfg.TelegramToken,
			cfg.TelegramChatID,
			cfg.Timeout.Duration,
		))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL, cfg.Timeout.Duration))
	}

	opts := []notify.Option{
		notify.WithRetry(notify.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay.Duration,
			Multiplier:  2,
		}),
	}
	if limiter != nil && cfg.RateLimit > 0 {
		opts = append(opts, notify.WithRateLimit(limiter, cfg.RateLimit, cfg.RateWindow.Duration))
	}
	return notify.NewNotifier(senders, cfg.Events, logger, opts...)
}

// publishers fans one payload out to several publishers. Every publisher is
// tried; errors are joined.
type publishers []domain.EventPublisher

func (ps publishers) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// todayCSV returns the CSV file currently being written.
func todayCSV(csv *record.CSVStore) string {
	return csv.Path(time.Now().UTC().Format(time.DateOnly))
}
