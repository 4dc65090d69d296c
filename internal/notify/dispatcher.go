package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
)

const drainTimeout = 10 * time.Second

// DeliveryLog records delivery outcomes. err is nil on success.
type DeliveryLog interface {
	LogDelivery(ctx context.Context, n domain.Notification, err error) error
}

// AsyncDispatcher queues notifications and delivers them on a single worker
// so that slow transports never stall ingestion.
type AsyncDispatcher struct {
	notifier *Notifier
	queue    chan domain.Notification
	history  DeliveryLog
	logger   *slog.Logger
}

// NewAsyncDispatcher creates a dispatcher with a queue of size entries.
func NewAsyncDispatcher(n *Notifier, size int, logger *slog.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{
		notifier: n,
		queue:    make(chan domain.Notification, max(size, 1)),
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// SetDeliveryLog records every delivery outcome in l. Call before Run.
func (d *AsyncDispatcher) SetDeliveryLog(l DeliveryLog) {
	d.history = l
}

// Dispatch enqueues nt. When the queue is full the notification is dropped.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, nt domain.Notification) {
	select {
	case d.queue <- nt:
	default:
		metrics.Notifications.WithLabelValues(string(nt.Kind), "dropped").Inc()
		d.logger.WarnContext(ctx, "notification queue full, dropping",
			slog.String("kind", string(nt.Kind)),
			slog.String("id", nt.ID),
		)
	}
}

// Run delivers queued notifications until ctx is cancelled, then drains what
// is left with a short deadline.
func (d *AsyncDispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			d.drain(ctx)
			return nil
		}
		select {
		case nt := <-d.queue:
			d.deliver(ctx, nt)
		case <-ctx.Done():
		}
	}
}

func (d *AsyncDispatcher) drain(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), drainTimeout)
	defer cancel()
	for {
		select {
		case nt := <-d.queue:
			d.deliver(ctx, nt)
		default:
			return
		}
	}
}

func (d *AsyncDispatcher) deliver(ctx context.Context, nt domain.Notification) {
	kind := string(nt.Kind)
	delivered, err := d.notifier.Notify(ctx, nt)
	if d.history != nil && (delivered || err != nil) {
		if lerr := d.history.LogDelivery(ctx, nt, err); lerr != nil {
			d.logger.WarnContext(ctx, "delivery log failed", slog.String("error", lerr.Error()))
		}
	}
	if err != nil {
		metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		d.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("kind", kind),
			slog.String("id", nt.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !delivered {
		return
	}
	metrics.Notifications.WithLabelValues(kind, "delivered").Inc()
	d.logger.InfoContext(ctx, "notification delivered",
		slog.String("kind", kind),
		slog.String("id", nt.ID),
	)
	if nt.OnDelivered != nil {
		nt.OnDelivered()
	}
}
