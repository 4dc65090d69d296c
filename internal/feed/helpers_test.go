package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/market"
	"github.com/alanyoungcy/tickerwatch/internal/throttle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingDispatcher struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, n)
}

func (d *recordingDispatcher) byKind(kind domain.NotificationKind) []domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Notification
	for _, n := range d.got {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type recordingStore struct {
	mu  sync.Mutex
	got []domain.Observation
	err error
}

func (r *recordingStore) Append(_ context.Context, obs domain.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, obs)
	return r.err
}

func (r *recordingStore) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type ingestFixture struct {
	ingest   *Ingestor
	store    *market.Store
	throttle *throttle.Throttle
	notes    *recordingDispatcher
	records  *recordingStore
	clock    *testClock
}

func newIngestFixture(symbols ...string) *ingestFixture {
	clk := newTestClock()
	f := &ingestFixture{
		store: market.NewStore(),
		throttle: throttle.New(throttle.Config{
			ReportInterval:       15 * time.Minute,
			HourlyReportInterval: time.Hour,
			MinChangePercent:     0.5,
			MinChangeVolume:      0.1,
			AlertThreshold:       5,
			AlertCooldown:        900 * time.Second,
		}, throttle.WithClock(clk.Now)),
		notes:   &recordingDispatcher{},
		records: &recordingStore{},
		clock:   clk,
	}
	f.ingest = NewIngestor(IngestorDeps{
		Store:    f.store,
		Throttle: f.throttle,
		Batch:    NewBatch(symbols),
		Records:  f.records,
		Notifier: f.notes,
	}, discardLogger())
	f.ingest.now = clk.Now
	return f
}

func observation(sym string, price, volume, change float64) domain.Observation {
	return domain.Observation{Symbol: sym, Price: price, Volume: volume, ChangePercent: change}
}
