package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/market"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
	"github.com/alanyoungcy/tickerwatch/internal/report"
	"github.com/alanyoungcy/tickerwatch/internal/throttle"
)

// ObservationChannel is the publisher channel for accepted observations.
const ObservationChannel = "observations"

// IngestorDeps are the collaborators of an Ingestor. Mirror is optional.
type IngestorDeps struct {
	Store    *market.Store
	Throttle *throttle.Throttle
	Batch    *Batch
	Records  domain.RecordStore
	Notifier domain.Dispatcher
	Mirror   *Mirror
}

// Ingestor is the shared sink for the stream session and the polling
// fallback. Every accepted observation goes through Accept.
type Ingestor struct {
	store    *market.Store
	throttle *throttle.Throttle
	batch    *Batch
	records  domain.RecordStore
	notifier domain.Dispatcher
	mirror   *Mirror
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestor creates an Ingestor.
func NewIngestor(deps IngestorDeps, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:    deps.Store,
		throttle: deps.Throttle,
		batch:    deps.Batch,
		records:  deps.Records,
		notifier: deps.Notifier,
		mirror:   deps.Mirror,
		logger:   logger.With(slog.String("component", "ingestor")),
		now:      time.Now,
	}
}

// BeginPass discards any partially collected pass.
func (in *Ingestor) BeginPass() {
	in.batch.Reset()
}

// Accept applies one observation: store upsert, mirrors, durable append,
// alert evaluation, then report evaluation when the pass completes. Sink
// failures are logged and never propagate.
func (in *Ingestor) Accept(ctx context.Context, obs domain.Observation) {
	in.store.Upsert(obs)
	metrics.TrackedSymbols.Set(float64(in.store.Len()))

	if in.mirror != nil {
		in.mirror.Observe(obs)
	}

	if in.records != nil {
		if err := in.records.Append(ctx, obs); err != nil {
			in.logger.WarnContext(ctx, "record append failed",
				slog.String("symbol", obs.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	if in.throttle.EvaluateAlert(obs) {
		in.dispatchAlert(ctx, obs)
	}

	if in.batch.Mark(obs.Symbol) {
		in.evaluateBatch(ctx)
	}
}

func (in *Ingestor) dispatchAlert(ctx context.Context, obs domain.Observation) {
	title, text, err := report.Alert(obs, in.throttle.Config().AlertThreshold)
	if err != nil {
		in.logger.ErrorContext(ctx, "render alert", slog.String("error", err.Error()))
		return
	}
	in.logger.InfoContext(ctx, "threshold alert",
		slog.String("symbol", obs.Symbol),
		slog.Float64("change_percent", obs.ChangePercent),
	)
	in.dispatch(ctx, domain.Notification{
		Kind:   domain.KindAlert,
		Symbol: obs.Symbol,
		Title:  title,
		Text:   text,
	})
}

// evaluateBatch runs the report decisions against the store as of the
// triggering message, restricted to the tracked symbols.
func (in *Ingestor) evaluateBatch(ctx context.Context) {
	snap := in.store.Snapshot()
	batch := make(map[string]domain.Observation, len(snap))
	for _, sym := range in.batch.Symbols() {
		if o, ok := snap[sym]; ok {
			batch[sym] = o
		}
	}

	if in.throttle.EvaluateReport(batch) {
		in.dispatchReport(ctx, domain.KindReport, batch, func() {
			in.throttle.CommitReport(batch)
			in.logger.Info("report baseline updated", slog.Int("symbols", len(batch)))
		})
	}
	if in.throttle.EvaluateHourly() {
		in.dispatchReport(ctx, domain.KindHourly, batch, nil)
	}
}

func (in *Ingestor) dispatchReport(ctx context.Context, kind domain.NotificationKind, batch map[string]domain.Observation, onDelivered func()) {
	title, text, err := report.Report(kind, batch, in.now())
	if err != nil {
		in.logger.ErrorContext(ctx, "render report", slog.String("error", err.Error()))
		return
	}
	in.logger.InfoContext(ctx, "report due",
		slog.String("kind", string(kind)),
		slog.Int("symbols", len(batch)),
	)
	in.dispatch(ctx, domain.Notification{
		Kind:        kind,
		Title:       title,
		Text:        text,
		OnDelivered: onDelivered,
	})
}

func (in *Ingestor) dispatch(ctx context.Context, n domain.Notification) {
	n.ID = uuid.NewString()
	n.CreatedAt = in.now()
	metrics.Notifications.WithLabelValues(string(n.Kind), "dispatched").Inc()
	if in.notifier != nil {
		in.notifier.Dispatch(ctx, n)
	}
}
