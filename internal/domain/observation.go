package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Observation is one decoded price/volume/change snapshot for a symbol.
// Values are never mutated after construction.
type Observation struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Volume        float64   `json:"volume"`
	ChangePercent float64   `json:"change_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewObservation validates the inputs and builds an Observation. Symbols are
// normalised to upper case.
func NewObservation(symbol string, price, volume, changePercent float64, at time.Time) (Observation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Observation{}, fmt.Errorf("%w: empty symbol", ErrMalformedMessage)
	}
	for name, v := range map[string]float64{"price": price, "volume": volume, "change_percent": changePercent} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Observation{}, fmt.Errorf("%w: %s is not finite", ErrMalformedMessage, name)
		}
	}
	if price < 0 {
		return Observation{}, fmt.Errorf("%w: negative price %v", ErrMalformedMessage, price)
	}
	if volume < 0 {
		return Observation{}, fmt.Errorf("%w: negative volume %v", ErrMalformedMessage, volume)
	}
	return Observation{
		Symbol:        symbol,
		Price:         price,
		Volume:        volume,
		ChangePercent: changePercent,
		ObservedAt:    at,
	}, nil
}
