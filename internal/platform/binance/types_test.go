package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

const tickerFrame = `{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1709294400000,"s":"BTCUSDT","p":"1500.00","P":"2.40","w":"63000.1","x":"62500.00","c":"64000.50","Q":"0.01","b":"64000.00","B":"1.2","a":"64000.60","A":"0.8","o":"62500.50","h":"64500.00","l":"62000.00","v":"12345.678","q":"790000000.0","O":1709208000000,"C":1709294399999,"F":1,"L":2,"n":2}}`

func TestDecode_CombinedEnvelope(t *testing.T) {
	d := NewDecoder([]string{"btcusdt", "ETHUSDT"}, "")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	obs, err := d.Decode([]byte(tickerFrame), at)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", obs.Symbol)
	assert.InDelta(t, 64000.50, obs.Price, 1e-9)
	assert.InDelta(t, 12345.678, obs.Volume, 1e-9)
	assert.InDelta(t, 2.40, obs.ChangePercent, 1e-9)
	assert.Equal(t, at, obs.ObservedAt)
}

func TestDecode_BareEvent(t *testing.T) {
	d := NewDecoder([]string{"ETHUSDT"}, EventTicker24h)
	obs, err := d.Decode([]byte(`{"e":"24hrTicker","s":"ETHUSDT","c":"3100.1","v":"50","P":"-1.5"}`), time.Now())
	require.NoError(t, err)
	assert.InDelta(t, -1.5, obs.ChangePercent, 1e-9)
}

func TestDecode_Errors(t *testing.T) {
	d := NewDecoder([]string{"BTCUSDT"}, "")

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"invalid json", `{"e":`, domain.ErrMalformedMessage},
		{"missing price", `{"e":"24hrTicker","s":"BTCUSDT","v":"1","P":"1"}`, domain.ErrMalformedMessage},
		{"missing volume", `{"e":"24hrTicker","s":"BTCUSDT","c":"1","P":"1"}`, domain.ErrMalformedMessage},
		{"missing change", `{"e":"24hrTicker","s":"BTCUSDT","c":"1","v":"1"}`, domain.ErrMalformedMessage},
		{"bad number", `{"e":"24hrTicker","s":"BTCUSDT","c":"abc","v":"1","P":"1"}`, domain.ErrMalformedMessage},
		{"negative price", `{"e":"24hrTicker","s":"BTCUSDT","c":"-1","v":"1","P":"1"}`, domain.ErrMalformedMessage},
		{"subscription ack", `{"result":null,"id":1}`, domain.ErrUnrecognized},
		{"other event", `{"e":"trade","s":"BTCUSDT","p":"1","q":"1"}`, domain.ErrUnrecognized},
		{"array payload", `[1,2,3]`, domain.ErrUnrecognized},
		{"untracked", `{"e":"24hrTicker","s":"DOGEUSDT","c":"1","v":"1","P":"1"}`, domain.ErrUntracked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode([]byte(tc.raw), time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecode_DiscardableClassification(t *testing.T) {
	d := NewDecoder([]string{"BTCUSDT"}, "")

	_, err := d.Decode([]byte(`{"e":"kline","s":"BTCUSDT"}`), time.Now())
	assert.True(t, domain.IsDiscardable(err))

	_, err = d.Decode([]byte(`{"e":"24hrTicker","s":"BTCUSDT"}`), time.Now())
	assert.False(t, domain.IsDiscardable(err))
}

func TestStreamURL(t *testing.T) {
	u, err := StreamURL("wss://stream.binance.com:9443", []string{"BTCUSDT", "ethusdt"})
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker", u)

	u, err = StreamURL("ws://127.0.0.1:8080/stream", []string{"BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/stream?streams=btcusdt@ticker", u)

	_, err = StreamURL("https://example.com", []string{"BTCUSDT"})
	assert.Error(t, err)

	_, err = StreamURL("wss://stream.binance.com", nil)
	assert.Error(t, err)
}
