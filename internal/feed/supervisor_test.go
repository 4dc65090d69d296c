package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

type scriptedRun struct {
	err  error
	live bool
}

// scriptedSession replays runs in order, then blocks until ctx is done.
type scriptedSession struct {
	mu    sync.Mutex
	runs  []scriptedRun
	calls int
}

func (s *scriptedSession) Run(ctx context.Context, hooks SessionHooks) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if i >= len(s.runs) {
		hooks.OnOpen()
		<-ctx.Done()
		return nil
	}
	r := s.runs[i]
	if r.live {
		hooks.OnOpen()
		hooks.OnLive()
	}
	return r.err
}

func (s *scriptedSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type blockingFallback struct {
	runs    atomic.Int32
	started chan struct{}
}

func newBlockingFallback() *blockingFallback {
	return &blockingFallback{started: make(chan struct{})}
}

func (f *blockingFallback) Run(ctx context.Context) error {
	if f.runs.Add(1) == 1 {
		close(f.started)
	}
	<-ctx.Done()
	return nil
}

func rejection() error {
	return &domain.Fault{Kind: domain.FaultRejected, Code: 403, Err: errors.New("forbidden")}
}

type stateLog struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (l *stateLog) record(st domain.ConnectionState) {
	l.mu.Lock()
	l.states = append(l.states, st)
	l.mu.Unlock()
}

func (l *stateLog) count(phase domain.ConnectionPhase) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.states {
		if st.Phase == phase {
			n++
		}
	}
	return n
}

func testBackoff() BackoffPolicy {
	return BackoffPolicy{
		Cap:          60 * time.Second,
		RejectionCap: 300 * time.Second,
		JitterMax:    5 * time.Second,
		Rand:         func() float64 { return 0 },
	}
}

func TestSupervisor_RejectionsExhaustToPolling(t *testing.T) {
	runs := make([]scriptedRun, 5)
	for i := range runs {
		runs[i] = scriptedRun{err: rejection()}
	}
	sess := &scriptedSession{runs: runs}
	fb := newBlockingFallback()
	states := &stateLog{}

	var delays []time.Duration
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 5, Backoff: testBackoff()}, sess, fb, discardLogger(),
		WithStateHook(states.record),
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case <-fb.started:
	case <-time.After(3 * time.Second):
		t.Fatal("fallback never started")
	}

	st := sup.State()
	assert.Equal(t, domain.PhasePolling, st.Phase)
	assert.Equal(t, 5, st.Attempt)
	assert.Equal(t, "rest_fallback", st.Status())
	assert.Equal(t, 5, sess.callCount())
	assert.Equal(t, 1, states.count(domain.PhasePolling))
	assert.Equal(t, 4, states.count(domain.PhaseDegraded))

	// 2^1..2^4 seconds, no jitter, all below the rejection cap.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, delays)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, domain.PhasePolling, sup.State().Phase, "polling is permanent")
	assert.Equal(t, 1, states.count(domain.PhasePolling))
	assert.Equal(t, int32(1), fb.runs.Load())
}

func TestSupervisor_EnterPollingIsIdempotent(t *testing.T) {
	states := &stateLog{}
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 1}, &scriptedSession{}, newBlockingFallback(), discardLogger(),
		WithStateHook(states.record))

	assert.True(t, sup.enterPolling("exhausted", 50))
	assert.False(t, sup.enterPolling("exhausted", 51))
	sup.setState(domain.PhaseConnecting, "", 0)

	assert.Equal(t, domain.PhasePolling, sup.State().Phase)
	assert.Equal(t, 50, sup.State().Attempt)
	assert.Equal(t, 1, states.count(domain.PhasePolling))
}

func TestSupervisor_LiveSessionResetsAttempts(t *testing.T) {
	transient := &domain.Fault{Kind: domain.FaultTransient, Err: errors.New("reset")}
	sess := &scriptedSession{runs: []scriptedRun{
		{err: transient},
		{err: transient},
		{err: transient, live: true},
		{err: transient},
		{err: transient},
	}}
	fb := newBlockingFallback()
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 3, Backoff: testBackoff()}, sess, fb, discardLogger(),
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	select {
	case <-fb.started:
	case <-time.After(3 * time.Second):
		t.Fatal("fallback never started")
	}
	// Without the reset the third fault would have exhausted the budget.
	assert.Equal(t, 5, sess.callCount())
}

func TestSupervisor_RecoversWithoutFallback(t *testing.T) {
	sess := &scriptedSession{runs: []scriptedRun{
		{err: &domain.Fault{Kind: domain.FaultTransient, Err: errors.New("eof")}},
	}}
	fb := newBlockingFallback()
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 3, Backoff: testBackoff()}, sess, fb, discardLogger(),
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sup.State().Phase == domain.PhaseConnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "running", sup.State().Status())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, domain.PhaseDisconnected, sup.State().Phase)
	assert.Equal(t, int32(0), fb.runs.Load())
}

func TestSupervisor_ShutdownDuringBackoff(t *testing.T) {
	sess := &scriptedSession{runs: []scriptedRun{
		{err: &domain.Fault{Kind: domain.FaultTransient, Err: errors.New("eof")}},
	}}
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 10, Backoff: BackoffPolicy{Cap: time.Hour}}, sess, newBlockingFallback(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sup.State().Phase == domain.PhaseDegraded
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "reconnecting_attempt_1", sup.State().Status())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("backoff sleep was not cancelled")
	}
}

func TestSupervisor_ExhaustionWithoutFallback(t *testing.T) {
	runs := make([]scriptedRun, 3)
	for i := range runs {
		runs[i] = scriptedRun{err: rejection()}
	}
	states := &stateLog{}
	sup := NewSupervisor(SupervisorConfig{MaxAttempts: 3, Backoff: testBackoff()}, &scriptedSession{runs: runs}, nil, discardLogger(),
		WithStateHook(states.record),
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrAttemptsExhausted)

	st := sup.State()
	assert.Equal(t, domain.PhaseDegraded, st.Phase)
	assert.Equal(t, domain.ErrAttemptsExhausted.Error(), st.Reason)
	assert.Equal(t, 3, st.Attempt)
	assert.Zero(t, states.count(domain.PhasePolling))
}
