package binance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// EventTicker24h is the event type of the rolling 24h ticker stream.
const EventTicker24h = "24hrTicker"

// combinedEnvelope wraps every frame on a /stream?streams=... connection.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// eventHeader is decoded first so that foreign event shapes never reach the
// ticker decoder.
type eventHeader struct {
	Event     string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
	Symbol    string          `json:"s"`
}

// TickerEvent is a 24hrTicker stream payload. encoding/json matches keys
// case-insensitively, so the upper/lower case siblings of the fields we need
// (E, p, C) are declared explicitly to keep them from overwriting e, P and c.
type TickerEvent struct {
	Event         string           `json:"e"`
	EventTime     int64            `json:"E"`
	Symbol        string           `json:"s"`
	PriceChange   *decimal.Decimal `json:"p"`
	ChangePercent *decimal.Decimal `json:"P"`
	LastPrice     *decimal.Decimal `json:"c"`
	CloseTime     int64            `json:"C"`
	Volume        *decimal.Decimal `json:"v"`
}

// RESTTicker is the /api/v3/ticker/24hr response body.
type RESTTicker struct {
	Symbol             string           `json:"symbol"`
	LastPrice          *decimal.Decimal `json:"lastPrice"`
	Volume             *decimal.Decimal `json:"volume"`
	PriceChangePercent *decimal.Decimal `json:"priceChangePercent"`
	CloseTime          int64            `json:"closeTime"`
}

// ToObservation converts the REST body to a domain observation.
func (t RESTTicker) ToObservation(at time.Time) (domain.Observation, error) {
	if t.LastPrice == nil || t.Volume == nil || t.PriceChangePercent == nil {
		return domain.Observation{}, fmt.Errorf("binance: %w: ticker %q missing fields", domain.ErrMalformedMessage, t.Symbol)
	}
	return domain.NewObservation(t.Symbol,
		t.LastPrice.InexactFloat64(),
		t.Volume.InexactFloat64(),
		t.PriceChangePercent.InexactFloat64(),
		at,
	)
}

// Decoder turns raw stream frames into observations for a fixed symbol set.
type Decoder struct {
	eventType string
	tracked   map[string]struct{}
}

// NewDecoder creates a Decoder that accepts eventType (EventTicker24h when
// empty) for the given symbols.
func NewDecoder(symbols []string, eventType string) *Decoder {
	if eventType == "" {
		eventType = EventTicker24h
	}
	tracked := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		tracked[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return &Decoder{eventType: eventType, tracked: tracked}
}

// Tracked reports whether symbol is in the decoder's symbol set.
func (d *Decoder) Tracked(symbol string) bool {
	_, ok := d.tracked[strings.ToUpper(symbol)]
	return ok
}

// Decode parses one frame. Frames may be bare events or combined-stream
// envelopes. The returned error wraps domain.ErrMalformedMessage for broken
// ticker payloads, domain.ErrUnrecognized for other shapes and event types,
// and domain.ErrUntracked for tickers of symbols outside the set.
func (d *Decoder) Decode(raw []byte, at time.Time) (domain.Observation, error) {
	if !json.Valid(raw) {
		return domain.Observation{}, fmt.Errorf("binance: %w: invalid json", domain.ErrMalformedMessage)
	}

	payload := raw
	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		payload = env.Data
	}
	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Observation{}, fmt.Errorf("binance: %w: payload is not an object", domain.ErrUnrecognized)
	}

	var hdr eventHeader
	if err := json.Unmarshal(payload, &hdr); err != nil {
		return domain.Observation{}, fmt.Errorf("binance: %w: header: %v", domain.ErrUnrecognized, err)
	}
	if hdr.Event != d.eventType {
		return domain.Observation{}, fmt.Errorf("binance: %w: event %q", domain.ErrUnrecognized, hdr.Event)
	}
	if !d.Tracked(hdr.Symbol) {
		return domain.Observation{}, fmt.Errorf("binance: %w: %q", domain.ErrUntracked, hdr.Symbol)
	}

	var ev TickerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.Observation{}, fmt.Errorf("binance: %w: %v", domain.ErrMalformedMessage, err)
	}
	switch {
	case ev.LastPrice == nil:
		return domain.Observation{}, fmt.Errorf("binance: %w: %s missing last price", domain.ErrMalformedMessage, ev.Symbol)
	case ev.Volume == nil:
		return domain.Observation{}, fmt.Errorf("binance: %w: %s missing volume", domain.ErrMalformedMessage, ev.Symbol)
	case ev.ChangePercent == nil:
		return domain.Observation{}, fmt.Errorf("binance: %w: %s missing change percent", domain.ErrMalformedMessage, ev.Symbol)
	}

	return domain.NewObservation(ev.Symbol,
		ev.LastPrice.InexactFloat64(),
		ev.Volume.InexactFloat64(),
		ev.ChangePercent.InexactFloat64(),
		at,
	)
}
