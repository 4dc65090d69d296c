package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// Mirror copies accepted observations to the optional cache and publisher.
// Observe never blocks; the worker started by Run does the writes, so a slow
// Redis cannot hold up ingestion.
type Mirror struct {
	cache     domain.ObservationCache
	publisher domain.EventPublisher
	queue     chan domain.Observation
	logger    *slog.Logger
}

// NewMirror creates a Mirror with a queue of size observations. Either
// cache or publisher may be nil.
func NewMirror(cache domain.ObservationCache, publisher domain.EventPublisher, size int, logger *slog.Logger) *Mirror {
	return &Mirror{
		cache:     cache,
		publisher: publisher,
		queue:     make(chan domain.Observation, max(size, 1)),
		logger:    logger.With(slog.String("component", "mirror")),
	}
}

// Observe enqueues obs and reports whether it was accepted. A full queue
// drops the observation.
func (m *Mirror) Observe(obs domain.Observation) bool {
	select {
	case m.queue <- obs:
		return true
	default:
		m.logger.Debug("mirror queue full, dropping observation", slog.String("symbol", obs.Symbol))
		return false
	}
}

// Run mirrors queued observations until ctx is cancelled. Anything still
// queued at shutdown is discarded.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case obs := <-m.queue:
			m.write(ctx, obs)
		}
	}
}

func (m *Mirror) write(ctx context.Context, obs domain.Observation) {
	if m.cache != nil {
		if err := m.cache.SetObservation(ctx, obs); err != nil {
			m.logger.DebugContext(ctx, "cache mirror failed",
				slog.String("symbol", obs.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(obs)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, ObservationChannel, payload); err != nil {
		m.logger.DebugContext(ctx, "publish failed",
			slog.String("symbol", obs.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
