package market

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

func obs(t *testing.T, symbol string, price float64, at time.Time) domain.Observation {
	t.Helper()
	o, err := domain.NewObservation(symbol, price, 10, 1.5, at)
	require.NoError(t, err)
	return o
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Upsert(obs(t, "BTCUSDT", 100, base))
	s.Upsert(obs(t, "BTCUSDT", 101, base.Add(time.Second)))

	got, ok := s.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, got.Price)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Upsert(obs(t, "ETHUSDT", 2000, time.Now()))

	snap := s.Snapshot()
	snap["ETHUSDT"] = domain.Observation{Symbol: "ETHUSDT", Price: -1}
	delete(snap, "ETHUSDT")

	got, ok := s.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 2000.0, got.Price)
}

func TestStore_SnapshotUnaffectedByLaterWrites(t *testing.T) {
	s := NewStore()
	s.Upsert(obs(t, "ETHUSDT", 2000, time.Now()))
	snap := s.Snapshot()

	s.Upsert(obs(t, "ETHUSDT", 2100, time.Now()))
	s.Upsert(obs(t, "BTCUSDT", 1, time.Now()))

	assert.Len(t, snap, 1)
	assert.Equal(t, 2000.0, snap["ETHUSDT"].Price)
}

func TestStore_Sorted(t *testing.T) {
	s := NewStore()
	for _, sym := range []string{"XRPUSDT", "BTCUSDT", "ETHUSDT"} {
		s.Upsert(obs(t, sym, 1, time.Now()))
	}
	sorted := s.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "BTCUSDT", sorted[0].Symbol)
	assert.Equal(t, "ETHUSDT", sorted[1].Symbol)
	assert.Equal(t, "XRPUSDT", sorted[2].Symbol)
}

// Readers racing a single writer must only ever see prices in the order the
// writer produced them.
func TestStore_ConcurrentReadersSeeMonotonicValues(t *testing.T) {
	s := NewStore()
	const writes = 2000
	symbols := []string{"A", "B", "C"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := map[string]float64{}
			for {
				select {
				case <-stop:
					return
				default:
				}
				for sym, o := range s.Snapshot() {
					if o.Price < last[sym] {
						errs <- fmt.Errorf("%s went backwards: %v < %v", sym, o.Price, last[sym])
						return
					}
					last[sym] = o.Price
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		sym := symbols[i%len(symbols)]
		s.Upsert(domain.Observation{Symbol: sym, Price: float64(i), ObservedAt: time.Now()})
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	for _, sym := range symbols {
		o, ok := s.Get(sym)
		require.True(t, ok)
		assert.Greater(t, o.Price, float64(writes-len(symbols)))
	}
}
