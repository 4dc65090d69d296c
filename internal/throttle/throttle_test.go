package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	return Config{
		ReportInterval:       15 * time.Minute,
		HourlyReportInterval: time.Hour,
		MinChangePercent:     0.5,
		MinChangeVolume:      0.1,
		AlertThreshold:       5,
		AlertCooldown:        900 * time.Second,
	}
}

func newTestThrottle() (*Throttle, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(testConfig(), WithClock(clk.Now)), clk
}

func obs(sym string, change, volume float64) domain.Observation {
	return domain.Observation{Symbol: sym, Price: 100, Volume: volume, ChangePercent: change}
}

func TestEvaluateAlert_ThresholdAndCooldown(t *testing.T) {
	th, clk := newTestThrottle()

	var alerted []string
	for _, o := range []domain.Observation{obs("A", 6, 10), obs("B", 1, 10)} {
		if th.EvaluateAlert(o) {
			alerted = append(alerted, o.Symbol)
		}
	}
	assert.Equal(t, []string{"A"}, alerted)

	clk.Advance(10 * time.Second)
	assert.False(t, th.EvaluateAlert(obs("A", 6, 10)), "second alert inside cooldown")

	clk.Advance(900 * time.Second)
	assert.True(t, th.EvaluateAlert(obs("A", 6, 10)), "cooldown elapsed")
}

func TestEvaluateAlert_NegativeChange(t *testing.T) {
	th, _ := newTestThrottle()
	assert.True(t, th.EvaluateAlert(obs("A", -5, 10)))
	assert.True(t, th.EvaluateAlert(obs("B", -7.2, 10)))
	assert.False(t, th.EvaluateAlert(obs("C", -4.99, 10)))
}

func TestEvaluateAlert_BurstFiresOnce(t *testing.T) {
	th, clk := newTestThrottle()
	fired := 0
	for i := 0; i < 100; i++ {
		if th.EvaluateAlert(obs("A", 8, 1)) {
			fired++
		}
		clk.Advance(5 * time.Second)
	}
	// 500s of updates fits inside one 900s cooldown.
	assert.Equal(t, 1, fired)
}

func TestEvaluateAlert_SymbolsIndependent(t *testing.T) {
	th, _ := newTestThrottle()
	assert.True(t, th.EvaluateAlert(obs("A", 6, 1)))
	assert.True(t, th.EvaluateAlert(obs("B", 6, 1)))
	assert.False(t, th.EvaluateAlert(obs("A", 6, 1)))
}

func TestEvaluateReport_FirstBatchAlwaysMaterial(t *testing.T) {
	th, _ := newTestThrottle()
	batch := map[string]domain.Observation{"A": obs("A", 0.1, 10)}
	assert.True(t, th.EvaluateReport(batch))
}

func TestEvaluateReport_IntervalGate(t *testing.T) {
	th, clk := newTestThrottle()
	first := map[string]domain.Observation{"A": obs("A", 1, 10)}
	require.True(t, th.EvaluateReport(first))
	th.CommitReport(first)

	moved := map[string]domain.Observation{"A": obs("A", 3, 10)}
	clk.Advance(14 * time.Minute)
	assert.False(t, th.EvaluateReport(moved), "interval not elapsed")

	clk.Advance(time.Minute)
	assert.True(t, th.EvaluateReport(moved))
}

func TestEvaluateReport_NotMaterialWithBaseline(t *testing.T) {
	th, clk := newTestThrottle()
	first := map[string]domain.Observation{"A": obs("A", 1, 100), "B": obs("B", 2, 50)}
	require.True(t, th.EvaluateReport(first))
	th.CommitReport(first)

	clk.Advance(time.Hour)
	same := map[string]domain.Observation{"A": obs("A", 1.4, 105), "B": obs("B", 2.2, 54)}
	assert.False(t, th.EvaluateReport(same))

	volume := map[string]domain.Observation{"A": obs("A", 1, 110), "B": obs("B", 2, 50)}
	assert.True(t, th.EvaluateReport(volume), "a ten percent volume move is material")
}

func TestEvaluateReport_UncommittedKeepsOldBaseline(t *testing.T) {
	th, clk := newTestThrottle()
	first := map[string]domain.Observation{"A": obs("A", 1, 100)}
	require.True(t, th.EvaluateReport(first))
	th.CommitReport(first)

	// Decided but never delivered: the baseline must stay at change=1.
	clk.Advance(15 * time.Minute)
	second := map[string]domain.Observation{"A": obs("A", 2, 100)}
	require.True(t, th.EvaluateReport(second))

	clk.Advance(15 * time.Minute)
	assert.True(t, th.EvaluateReport(second), "still material against the delivered baseline")
}

func TestMaterial_ZeroBaselineVolumeIgnored(t *testing.T) {
	th, _ := newTestThrottle()
	th.CommitReport(map[string]domain.Observation{"A": obs("A", 1, 0)})
	assert.False(t, th.Material(map[string]domain.Observation{"A": obs("A", 1, 5000)}))
}

func TestMaterial_NewSymbol(t *testing.T) {
	th, _ := newTestThrottle()
	th.CommitReport(map[string]domain.Observation{"A": obs("A", 1, 10)})
	assert.True(t, th.Material(map[string]domain.Observation{
		"A": obs("A", 1, 10),
		"B": obs("B", 0, 10),
	}))
}

func TestEvaluateHourly(t *testing.T) {
	th, clk := newTestThrottle()
	assert.True(t, th.EvaluateHourly())
	clk.Advance(59 * time.Minute)
	assert.False(t, th.EvaluateHourly())
	clk.Advance(time.Minute)
	assert.True(t, th.EvaluateHourly())
}

func TestState_IsCopy(t *testing.T) {
	th, _ := newTestThrottle()
	th.EvaluateAlert(obs("A", 9, 1))
	th.CommitReport(map[string]domain.Observation{"A": obs("A", 9, 1)})

	st := th.State()
	st.LastAlert["B"] = time.Now()
	st.Baseline.Entries["B"] = BaselineEntry{}

	again := th.State()
	assert.Len(t, again.LastAlert, 1)
	assert.Len(t, again.Baseline.Entries, 1)
}
