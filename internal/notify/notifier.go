// Package notify provides a multi-channel notification system. Notifications
// are delivered to all registered senders (Telegram, Discord, etc.) with a
// bounded retry policy and can be filtered by kind so operators receive only
// the messages they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithRetry sets the per-sender retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(n *Notifier) { n.retry = p }
}

// WithRateLimit caps deliveries per notification kind using a shared limiter.
// A limiter error lets the message through.
func WithRateLimit(l domain.RateLimiter, limit int, window time.Duration) Option {
	return func(n *Notifier) {
		n.limiter = l
		n.limit = limit
		n.window = window
	}
}

// Notifier delivers notifications to one or more Senders. It maintains a set
// of allowed kinds; Notify only forwards notifications whose kind is in the
// allowed set, while Deliver bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed kinds
	retry   RetryPolicy
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// kinds listed in events are forwarded by Notify; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger, opts ...Option) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		retry:   RetryPolicy{MaxAttempts: 1},
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify delivers nt if its kind passes the filter and the rate limit.
// Filtered and rate-limited notifications return nil without delivery and
// are not reported as delivered.
func (n *Notifier) Notify(ctx context.Context, nt domain.Notification) (delivered bool, err error) {
	kind := string(nt.Kind)
	if len(n.events) > 0 && !n.events[kind] {
		n.logger.DebugContext(ctx, "notification filtered out", slog.String("kind", kind))
		return false, nil
	}

	if n.limiter != nil && n.limit > 0 {
		ok, err := n.limiter.Allow(ctx, "notify:"+kind, n.limit, n.window)
		if err != nil {
			n.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		} else if !ok {
			n.logger.WarnContext(ctx, "notification rate limited",
				slog.String("kind", kind),
				slog.String("id", nt.ID),
			)
			return false, nil
		}
	}

	if err := n.Deliver(ctx, nt.Title, nt.Text); err != nil {
		return false, err
	}
	return len(n.senders) > 0, nil
}

// Deliver sends to every sender, retrying each one according to the retry
// policy. A single sender failure does not prevent delivery to the others;
// failures are combined into one error wrapping domain.ErrDeliveryFailed.
func (n *Notifier) Deliver(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		err := n.retry.Do(ctx, func(ctx context.Context) error {
			return s.Send(ctx, title, message)
		})
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w: %w", len(errs), domain.ErrDeliveryFailed, errors.Join(errs...))
	}
	return nil
}
