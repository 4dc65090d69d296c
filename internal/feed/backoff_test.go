package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

func TestBackoff_TransientBounds(t *testing.T) {
	p := BackoffPolicy{Cap: 60 * time.Second, RejectionCap: 300 * time.Second, JitterMax: 5 * time.Second}

	for n := 1; n <= 5; n++ {
		for i := 0; i < 50; i++ {
			d := p.Delay(domain.FaultTransient, n)
			lo := time.Duration(1<<n) * time.Second
			hi := lo + p.JitterMax
			if hi > p.Cap {
				hi = p.Cap
				assert.LessOrEqual(t, d, hi)
			} else {
				assert.Less(t, d, hi)
			}
			assert.GreaterOrEqual(t, d, min(lo, p.Cap))
		}
	}
}

func TestBackoff_Caps(t *testing.T) {
	p := BackoffPolicy{
		Cap:          60 * time.Second,
		RejectionCap: 300 * time.Second,
		JitterMax:    5 * time.Second,
		Rand:         func() float64 { return 0.5 },
	}

	assert.Equal(t, 2*time.Second+2500*time.Millisecond, p.Delay(domain.FaultTransient, 1))
	assert.Equal(t, 60*time.Second, p.Delay(domain.FaultTransient, 6))
	assert.Equal(t, 60*time.Second, p.Delay(domain.FaultProtocol, 10))
	assert.Equal(t, 128*time.Second+2500*time.Millisecond, p.Delay(domain.FaultRejected, 7))
	assert.Equal(t, 300*time.Second, p.Delay(domain.FaultRejected, 9))
	assert.Equal(t, 300*time.Second, p.Delay(domain.FaultRejected, 50))
	assert.Equal(t, 60*time.Second, p.Delay(domain.FaultTransient, 64))
}

func TestBackoff_NoJitter(t *testing.T) {
	p := BackoffPolicy{Cap: time.Minute}
	assert.Equal(t, 8*time.Second, p.Delay(domain.FaultTransient, 3))
}
