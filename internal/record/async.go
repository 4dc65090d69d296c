package record

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// AsyncWriter decouples callers from a slow store. Append never blocks; the
// worker started by Run does the actual writes.
type AsyncWriter struct {
	next   domain.RecordStore
	queue  chan domain.Observation
	logger *slog.Logger
}

// NewAsyncWriter creates a writer with a queue of size observations.
func NewAsyncWriter(next domain.RecordStore, size int, logger *slog.Logger) *AsyncWriter {
	return &AsyncWriter{
		next:   next,
		queue:  make(chan domain.Observation, max(size, 1)),
		logger: logger.With(slog.String("component", "record_writer")),
	}
}

// Append enqueues obs, or returns domain.ErrQueueFull.
func (a *AsyncWriter) Append(_ context.Context, obs domain.Observation) error {
	select {
	case a.queue <- obs:
		return nil
	default:
		return fmt.Errorf("record: %w", domain.ErrQueueFull)
	}
}

// Run writes queued observations until ctx is cancelled, then flushes the
// remainder.
func (a *AsyncWriter) Run(ctx context.Context) error {
	for {
		select {
		case obs := <-a.queue:
			a.write(ctx, obs)
		case <-ctx.Done():
			flush := context.WithoutCancel(ctx)
			for {
				select {
				case obs := <-a.queue:
					a.write(flush, obs)
				default:
					return nil
				}
			}
		}
	}
}

func (a *AsyncWriter) write(ctx context.Context, obs domain.Observation) {
	if err := a.next.Append(ctx, obs); err != nil {
		a.logger.WarnContext(ctx, "record append failed",
			slog.String("symbol", obs.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
