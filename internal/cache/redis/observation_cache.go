package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// ObservationCache implements domain.ObservationCache using Redis hashes.
// Each symbol is stored at "ticker:{symbol}" with fields price, volume,
// change_percent and ts (Unix nanoseconds).
type ObservationCache struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

// NewObservationCache creates an ObservationCache. Entries expire after ttl
// without updates; zero keeps them forever.
func NewObservationCache(c *Client, ttl time.Duration) *ObservationCache {
	return &ObservationCache{client: c, rdb: c.Underlying(), ttl: ttl}
}

func (oc *ObservationCache) key(symbol string) string {
	return oc.client.Key("ticker:" + symbol)
}

func observationFields(obs domain.Observation) map[string]interface{} {
	return map[string]interface{}{
		"price":          strconv.FormatFloat(obs.Price, 'f', -1, 64),
		"volume":         strconv.FormatFloat(obs.Volume, 'f', -1, 64),
		"change_percent": strconv.FormatFloat(obs.ChangePercent, 'f', -1, 64),
		"ts":             strconv.FormatInt(obs.ObservedAt.UnixNano(), 10),
	}
}

func parseObservation(symbol string, vals map[string]string) (domain.Observation, error) {
	if len(vals) == 0 {
		return domain.Observation{}, domain.ErrNotFound
	}
	parse := func(field string) (float64, error) {
		s, ok := vals[field]
		if !ok {
			return 0, fmt.Errorf("missing field %s", field)
		}
		return strconv.ParseFloat(s, 64)
	}

	price, err := parse("price")
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse %s: %w", symbol, err)
	}
	volume, err := parse("volume")
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse %s: %w", symbol, err)
	}
	change, err := parse("change_percent")
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	return domain.NewObservation(symbol, price, volume, change, time.Unix(0, tsNano).UTC())
}

// SetObservation stores the latest observation for its symbol.
func (oc *ObservationCache) SetObservation(ctx context.Context, obs domain.Observation) error {
	key := oc.key(obs.Symbol)
	pipe := oc.rdb.TxPipeline()
	pipe.HSet(ctx, key, observationFields(obs))
	if oc.ttl > 0 {
		pipe.Expire(ctx, key, oc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set observation %s: %w", obs.Symbol, err)
	}
	return nil
}

// Latest returns the cached observation for symbol, or domain.ErrNotFound.
func (oc *ObservationCache) Latest(ctx context.Context, symbol string) (domain.Observation, error) {
	vals, err := oc.rdb.HGetAll(ctx, oc.key(symbol)).Result()
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: get observation %s: %w", symbol, err)
	}
	return parseObservation(symbol, vals)
}

// Compile-time interface check.
var _ domain.ObservationCache = (*ObservationCache)(nil)
