// Package throttle decides when reports and alerts may be sent.
//
// Three independent decisions are made:
//
//   - periodic report: interval elapsed and the batch moved materially
//     relative to the last delivered report
//   - hourly report: interval elapsed, unconditionally
//   - threshold alert: per symbol, |change%| at or above the threshold and
//     the symbol's cooldown elapsed
//
// Cooldown timestamps are recorded at decision time, before the message is
// handed to the transport. A delivery that later fails still consumes its
// window. The report baseline is the exception: it only moves once a report
// is confirmed delivered, so materiality is always judged against what
// operators actually received.
package throttle

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// Config holds the throttle thresholds.
type Config struct {
	ReportInterval       time.Duration
	HourlyReportInterval time.Duration
	MinChangePercent     float64 // absolute percentage points
	MinChangeVolume      float64 // relative, 0.1 == 10%
	AlertThreshold       float64 // absolute percentage points
	AlertCooldown        time.Duration
}

// BaselineEntry is the reported state of one symbol.
type BaselineEntry struct {
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume"`
}

// Baseline is the last delivered periodic report.
type Baseline struct {
	Entries    map[string]BaselineEntry `json:"entries"`
	ReportedAt time.Time                `json:"reported_at"`
}

// State is a read-only copy of the throttle's bookkeeping.
type State struct {
	LastReport       time.Time            `json:"last_report"`
	LastHourlyReport time.Time            `json:"last_hourly_report"`
	LastAlert        map[string]time.Time `json:"last_alert"`
	Baseline         *Baseline            `json:"baseline,omitempty"`
}

// Option customises a Throttle.
type Option func(*Throttle)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// Throttle owns the report baseline and all cooldown timestamps.
type Throttle struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	baseline   *Baseline
	lastReport time.Time
	lastHourly time.Time
	lastAlert  map[string]time.Time
}

// New creates a Throttle with no baseline and every cooldown expired.
func New(cfg Config, opts ...Option) *Throttle {
	t := &Throttle{
		cfg:       cfg,
		now:       time.Now,
		lastAlert: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the thresholds the throttle was built with.
func (t *Throttle) Config() Config { return t.cfg }

// EvaluateAlert reports whether obs should raise a threshold alert, and if
// so starts the symbol's cooldown.
func (t *Throttle) EvaluateAlert(obs domain.Observation) bool {
	if math.Abs(obs.ChangePercent) < t.cfg.AlertThreshold {
		return false
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastAlert[obs.Symbol]; ok && now.Sub(last) < t.cfg.AlertCooldown {
		return false
	}
	t.lastAlert[obs.Symbol] = now
	return true
}

// EvaluateReport reports whether a periodic report of batch should be sent.
// On true the report interval restarts; call CommitReport once delivery is
// confirmed to move the baseline.
func (t *Throttle) EvaluateReport(batch map[string]domain.Observation) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastReport.IsZero() && now.Sub(t.lastReport) < t.cfg.ReportInterval {
		return false
	}
	if !t.materialLocked(batch) {
		return false
	}
	t.lastReport = now
	return true
}

// CommitReport records batch as the delivered baseline.
func (t *Throttle) CommitReport(batch map[string]domain.Observation) {
	entries := make(map[string]BaselineEntry, len(batch))
	for sym, obs := range batch {
		entries[sym] = BaselineEntry{ChangePercent: obs.ChangePercent, Volume: obs.Volume}
	}
	now := t.now()

	t.mu.Lock()
	t.baseline = &Baseline{Entries: entries, ReportedAt: now}
	t.mu.Unlock()
}

// EvaluateHourly reports whether the hourly report is due, restarting its
// interval when it is.
func (t *Throttle) EvaluateHourly() bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastHourly.IsZero() && now.Sub(t.lastHourly) < t.cfg.HourlyReportInterval {
		return false
	}
	t.lastHourly = now
	return true
}

// Material reports whether batch differs enough from the baseline to be
// worth reporting. With no baseline every batch is material.
func (t *Throttle) Material(batch map[string]domain.Observation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.materialLocked(batch)
}

func (t *Throttle) materialLocked(batch map[string]domain.Observation) bool {
	if t.baseline == nil {
		return true
	}
	for sym, obs := range batch {
		base, ok := t.baseline.Entries[sym]
		if !ok {
			return true
		}
		if math.Abs(obs.ChangePercent-base.ChangePercent) >= t.cfg.MinChangePercent {
			return true
		}
		if base.Volume > 0 && math.Abs(obs.Volume-base.Volume)/base.Volume >= t.cfg.MinChangeVolume {
			return true
		}
	}
	return false
}

// State returns a copy of the bookkeeping for the status surface.
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	alerts := make(map[string]time.Time, len(t.lastAlert))
	for k, v := range t.lastAlert {
		alerts[k] = v
	}
	st := State{
		LastReport:       t.lastReport,
		LastHourlyReport: t.lastHourly,
		LastAlert:        alerts,
	}
	if t.baseline != nil {
		entries := make(map[string]BaselineEntry, len(t.baseline.Entries))
		for k, v := range t.baseline.Entries {
			entries[k] = v
		}
		st.Baseline = &Baseline{Entries: entries, ReportedAt: t.baseline.ReportedAt}
	}
	return st
}
