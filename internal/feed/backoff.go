package feed

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// maxExponent bounds 2^attempt so the shift cannot overflow a Duration.
const maxExponent = 30

// BackoffPolicy computes reconnect delays.
//
// For attempt n the delay is 2^n seconds plus a jitter drawn uniformly from
// [0, JitterMax), capped at Cap. Rejections by the server are capped at
// RejectionCap instead.
type BackoffPolicy struct {
	Cap          time.Duration
	RejectionCap time.Duration
	JitterMax    time.Duration

	// Rand returns a float in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// Delay returns the wait before reconnect attempt attempt+1.
func (p BackoffPolicy) Delay(kind domain.FaultKind, attempt int) time.Duration {
	ceiling := p.Cap
	if kind == domain.FaultRejected && p.RejectionCap > 0 {
		ceiling = p.RejectionCap
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		return ceiling
	}

	d := time.Duration(1<<uint(attempt)) * time.Second
	if p.JitterMax > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(r() * float64(p.JitterMax))
	}
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
