package record

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// Sampler forwards at most one observation per symbol per interval. The
// stream delivers about one ticker per second per symbol, far more than the
// log needs.
type Sampler struct {
	next     domain.RecordStore
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSampler wraps next. A zero interval forwards everything.
func NewSampler(next domain.RecordStore, interval time.Duration) *Sampler {
	return &Sampler{next: next, interval: interval, last: make(map[string]time.Time)}
}

// Append forwards obs when the symbol's interval has elapsed.
func (s *Sampler) Append(ctx context.Context, obs domain.Observation) error {
	if s.interval > 0 {
		s.mu.Lock()
		last, ok := s.last[obs.Symbol]
		if ok && obs.ObservedAt.Sub(last) < s.interval {
			s.mu.Unlock()
			return nil
		}
		s.last[obs.Symbol] = obs.ObservedAt
		s.mu.Unlock()
	}
	return s.next.Append(ctx, obs)
}
