package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

func TestObservationFieldsRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	in := domain.Observation{Symbol: "BTCUSDT", Price: 64000.5, Volume: 12.25, ChangePercent: -1.5, ObservedAt: at}

	vals := make(map[string]string)
	for k, v := range observationFields(in) {
		vals[k] = v.(string)
	}
	out, err := parseObservation("BTCUSDT", vals)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseObservation_Missing(t *testing.T) {
	_, err := parseObservation("BTCUSDT", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = parseObservation("BTCUSDT", map[string]string{"price": "1"})
	assert.Error(t, err)
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "tw:"}
	assert.Equal(t, "tw:ticker:BTCUSDT", NewObservationCache(c, 0).key("BTCUSDT"))
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "tickerwatch:", namespace("tickerwatch"))
	assert.Equal(t, "tickerwatch:", namespace("tickerwatch:"))
	assert.Equal(t, "", namespace("  "))

	c := &Client{prefix: namespace("tw")}
	assert.Equal(t, "tw:ratelimit:notify:alert", NewRateLimiter(c).key("notify:alert"))
}
