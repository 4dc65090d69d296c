package domain

import (
	"context"
	"time"
)

// RecordStore appends observations to durable storage.
type RecordStore interface {
	Append(ctx context.Context, obs Observation) error
}

// Dispatcher hands notifications to the transport without waiting for
// delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// ObservationCache mirrors the latest observation per symbol into a shared
// cache for external dashboards.
type ObservationCache interface {
	SetObservation(ctx context.Context, obs Observation) error
}

// EventPublisher broadcasts raw payloads on a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
