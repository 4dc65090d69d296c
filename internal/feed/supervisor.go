package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
)

// SessionRunner runs a single streaming session (see Session.Run).
type SessionRunner interface {
	Run(ctx context.Context, hooks SessionHooks) error
}

// Fallback takes over once streaming is abandoned. A nil Fallback makes
// exhaustion terminal: Run reports Degraded and returns ErrAttemptsExhausted.
type Fallback interface {
	Run(ctx context.Context) error
}

// SupervisorConfig controls reconnection.
type SupervisorConfig struct {
	MaxAttempts int
	Backoff     BackoffPolicy
}

// SupervisorOption customises a Supervisor.
type SupervisorOption func(*Supervisor)

// WithStateHook registers fn to observe every state transition. fn runs on
// the supervisor goroutine and must not block.
func WithStateHook(fn func(domain.ConnectionState)) SupervisorOption {
	return func(s *Supervisor) { s.onState = fn }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SupervisorOption {
	return func(s *Supervisor) { s.sleep = fn }
}

// Supervisor drives stream sessions with backoff and degrades to the
// fallback after MaxAttempts consecutive failures. The degradation is
// permanent for the lifetime of the process.
type Supervisor struct {
	cfg      SupervisorConfig
	session  SessionRunner
	fallback Fallback
	logger   *slog.Logger
	onState  func(domain.ConnectionState)
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu    sync.RWMutex
	state domain.ConnectionState
}

// NewSupervisor creates a Supervisor in the Disconnected phase.
func NewSupervisor(cfg SupervisorConfig, session SessionRunner, fallback Fallback, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		session:  session,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "supervisor")),
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = domain.ConnectionState{Phase: domain.PhaseDisconnected, Since: s.now()}
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run blocks until ctx is cancelled. Session faults never escape Run; the
// only outcomes are a clean shutdown, a hand-off to the fallback, or
// ErrAttemptsExhausted when there is no fallback.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(domain.PhaseDisconnected, "shutdown", attempt)
			return nil
		}

		s.setState(domain.PhaseConnecting, "", attempt)
		if attempt == 0 {
			s.logger.InfoContext(ctx, "connecting to stream")
		} else {
			s.logger.InfoContext(ctx, "reconnecting to stream",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", s.cfg.MaxAttempts),
			)
		}

		var live atomic.Bool
		err := s.session.Run(ctx, SessionHooks{
			OnOpen: func() { s.setState(domain.PhaseConnected, "", 0) },
			OnLive: func() { live.Store(true) },
		})
		if err == nil || ctx.Err() != nil {
			s.setState(domain.PhaseDisconnected, "shutdown", 0)
			return nil
		}

		fault := Classify(err)
		metrics.SessionFaults.WithLabelValues(string(fault.Kind)).Inc()

		if live.Load() {
			attempt = 0
		}
		attempt++
		metrics.ReconnectAttempt.Set(float64(attempt))

		if attempt >= s.cfg.MaxAttempts {
			if s.fallback == nil {
				s.setState(domain.PhaseDegraded, domain.ErrAttemptsExhausted.Error(), attempt)
				s.logger.ErrorContext(ctx, "reconnect attempts exhausted, no fallback configured",
					slog.Int("attempts", attempt),
					slog.String("last_fault", string(fault.Kind)),
				)
				return fmt.Errorf("feed: %w", domain.ErrAttemptsExhausted)
			}
			if s.enterPolling(fault.Error(), attempt) {
				s.logger.ErrorContext(ctx, "reconnect attempts exhausted, switching to polling fallback",
					slog.Int("attempts", attempt),
					slog.String("last_fault", string(fault.Kind)),
				)
			}
			if err := s.fallback.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}

		delay := s.cfg.Backoff.Delay(fault.Kind, attempt)
		metrics.BackoffSeconds.Observe(delay.Seconds())
		s.setState(domain.PhaseDegraded, fault.Error(), attempt)
		s.logger.WarnContext(ctx, "stream fault, backing off",
			slog.String("kind", string(fault.Kind)),
			slog.Int("code", fault.Code),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", fault.Err.Error()),
		)
		if err := s.sleep(ctx, delay); err != nil {
			s.setState(domain.PhaseDisconnected, "shutdown", attempt)
			return nil
		}
	}
}

// enterPolling moves to PhasePolling and reports whether this call made the
// transition. Once polling, every other transition is ignored.
func (s *Supervisor) enterPolling(reason string, attempt int) bool {
	s.mu.Lock()
	if s.state.Phase == domain.PhasePolling {
		s.mu.Unlock()
		return false
	}
	s.state = domain.ConnectionState{Phase: domain.PhasePolling, Reason: reason, Attempt: attempt, Since: s.now()}
	st := s.state
	s.mu.Unlock()

	s.publish(st)
	return true
}

func (s *Supervisor) setState(phase domain.ConnectionPhase, reason string, attempt int) {
	s.mu.Lock()
	if s.state.Phase == domain.PhasePolling {
		s.mu.Unlock()
		return
	}
	if phase == domain.PhaseConnected {
		attempt = 0
	}
	s.state = domain.ConnectionState{Phase: phase, Reason: reason, Attempt: attempt, Since: s.now()}
	st := s.state
	s.mu.Unlock()

	s.publish(st)
}

func (s *Supervisor) publish(st domain.ConnectionState) {
	phases := make([]string, len(domain.AllPhases))
	for i, p := range domain.AllPhases {
		phases[i] = string(p)
	}
	metrics.SetPhase(string(st.Phase), phases)
	if s.onState != nil {
		s.onState(st)
	}
}
