package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
	"github.com/alanyoungcy/tickerwatch/internal/platform/binance"
)

// Dialer opens one streaming connection.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// SessionConfig holds the stream session timings.
type SessionConfig struct {
	PingInterval  time.Duration
	ReadTimeout   time.Duration // max silence before the connection is considered dead
	WriteTimeout  time.Duration
	ReadLimit     int64
	ProgressEvery uint64 // log a progress line every N frames
}

// SessionHooks are called by Session.Run. OnOpen fires once the connection
// is established, OnLive after the first accepted observation.
type SessionHooks struct {
	OnOpen func()
	OnLive func()
}

// Session runs one streaming connection at a time. A Session value may be
// reused for consecutive connections but Run must not be called concurrently.
type Session struct {
	cfg     SessionConfig
	dialer  Dialer
	decoder *binance.Decoder
	ingest  *Ingestor
	stats   *Stats
	logger  *slog.Logger
	now     func() time.Time
}

// NewSession creates a Session.
func NewSession(cfg SessionConfig, dialer Dialer, decoder *binance.Decoder, ingest *Ingestor, stats *Stats, logger *slog.Logger) *Session {
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 200
	}
	return &Session{
		cfg:     cfg,
		dialer:  dialer,
		decoder: decoder,
		ingest:  ingest,
		stats:   stats,
		logger:  logger.With(slog.String("component", "stream_session")),
		now:     time.Now,
	}
}

// Run connects and consumes the stream until the connection fails or ctx is
// cancelled. The inbound reader and the heartbeat run concurrently; either
// one failing tears down both. A caller-initiated shutdown returns nil, any
// other termination returns a *domain.Fault.
func (s *Session) Run(ctx context.Context, hooks SessionHooks) error {
	log := s.logger.With(slog.String("session_id", uuid.NewString()))

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return Classify(err)
	}

	s.stats.SetConnected(true)
	defer s.stats.SetConnected(false)
	s.ingest.BeginPass()
	log.InfoContext(ctx, "stream connected")
	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}
	conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, conn, hooks, log) })
	g.Go(func() error { return s.heartbeat(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.cfg.WriteTimeout))
		return conn.Close()
	})

	err = g.Wait()
	if ctx.Err() != nil {
		log.InfoContext(ctx, "stream closed")
		return nil
	}
	if err == nil {
		err = errors.New("session ended")
	}
	fault := Classify(err)
	log.WarnContext(ctx, "stream session ended",
		slog.String("kind", string(fault.Kind)),
		slog.Int("code", fault.Code),
		slog.String("error", err.Error()),
	)
	return fault
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, hooks SessionHooks, log *slog.Logger) error {
	var live atomic.Bool
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		at := s.now()
		conn.SetReadDeadline(at.Add(s.cfg.ReadTimeout))
		n := s.stats.MessageReceived(at)

		obs, err := s.decoder.Decode(data, at)
		switch {
		case err == nil:
			metrics.MessagesTotal.WithLabelValues("accepted").Inc()
			s.ingest.Accept(ctx, obs)
			if live.CompareAndSwap(false, true) && hooks.OnLive != nil {
				hooks.OnLive()
			}
		case domain.IsDiscardable(err):
			metrics.MessagesTotal.WithLabelValues("discarded").Inc()
		default:
			metrics.MessagesTotal.WithLabelValues("malformed").Inc()
			s.stats.Malformed()
			log.WarnContext(ctx, "skipping malformed message", slog.String("error", err.Error()))
		}

		if n%s.cfg.ProgressEvery == 0 {
			log.InfoContext(ctx, "stream progress",
				slog.Uint64("messages", n),
				slog.Int("pending_symbols", s.ingest.batch.Pending()),
			)
		}
	}
}

// heartbeat sends a ping every PingInterval. WriteControl may run
// concurrently with the reader and the closer.
func (s *Session) heartbeat(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("%w: %v", ErrHeartbeat, err)
			}
		}
	}
}
