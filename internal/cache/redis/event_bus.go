package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// streamMaxLen is the approximate maximum length of the state stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// StateChannel carries connection state transitions.
const StateChannel = "connection"

// EventBus implements domain.EventPublisher using Redis Pub/Sub for live
// updates and a Redis Stream for the connection state history.
type EventBus struct {
	client *Client
	rdb    *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{client: c, rdb: c.Underlying()}
}

// Publish sends payload on the prefixed Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	ch := eb.client.Key(channel)
	if err := eb.rdb.Publish(ctx, ch, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", ch, err)
	}
	return nil
}

// PublishState broadcasts st, stores it as the current state and appends it
// to the state history stream.
func (eb *EventBus) PublishState(ctx context.Context, st domain.ConnectionState) error {
	payload, err := json.Marshal(struct {
		domain.ConnectionState
		Status string `json:"status"`
	}{st, st.Status()})
	if err != nil {
		return fmt.Errorf("redis: marshal state: %w", err)
	}

	pipe := eb.rdb.Pipeline()
	pipe.Publish(ctx, eb.client.Key(StateChannel), payload)
	pipe.Set(ctx, eb.client.Key("state"), payload, 0)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: eb.client.Key("state:history"),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish state: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventBus)(nil)
