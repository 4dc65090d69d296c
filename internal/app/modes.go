package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tickerwatch/internal/cache/redis"
	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/feed"
	"github.com/alanyoungcy/tickerwatch/internal/platform/binance"
	"github.com/alanyoungcy/tickerwatch/internal/server"
	"github.com/alanyoungcy/tickerwatch/internal/server/handler"
	"github.com/alanyoungcy/tickerwatch/internal/server/ws"
)

// ConnectionChannel carries supervisor state transitions to live clients
// and the event bus.
const ConnectionChannel = "connection"

// mirrorQueueSize bounds observations waiting for the cache and publishers.
const mirrorQueueSize = 1024

// FullMode streams tickers and degrades to REST polling once reconnection
// is exhausted.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runStreaming(ctx, deps, true)
}

// StreamMode streams tickers and exits with ErrAttemptsExhausted instead of
// falling back to polling.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")
	return a.runStreaming(ctx, deps, false)
}

// PollMode polls the REST endpoint only. No stream session is opened.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode")

	g, ctx := errgroup.WithContext(ctx)
	conn := handler.StaticConnection{Phase: domain.PhasePolling, Since: time.Now()}
	live := a.startSupport(ctx, g, deps, conn)

	poller := a.pollerFor(deps, a.newIngestor(ctx, g, deps, live))
	g.Go(func() error {
		return poller.Run(ctx)
	})

	return g.Wait()
}

// runStreaming starts the supervised stream session. After MaxAttempts
// consecutive failures it either polls or gives up, depending on poll.
func (a *App) runStreaming(ctx context.Context, deps *Dependencies, poll bool) error {
	streamURL, err := binance.StreamURL(a.cfg.Exchange.StreamURL, a.cfg.Exchange.Symbols)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	relay := newStateRelay(deps.Bus, a.logger)
	sup := &lazyConnection{}
	live := a.startSupport(ctx, g, deps, sup)
	relay.hub = live

	ingest := a.newIngestor(ctx, g, deps, live)
	session := feed.NewSession(feed.SessionConfig{
		PingInterval: a.cfg.Stream.PingInterval.Duration,
		ReadTimeout:  a.cfg.Stream.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Stream.WriteTimeout.Duration,
		ReadLimit:    a.cfg.Stream.ReadLimit,
	},
		binance.NewDialer(streamURL, a.cfg.Stream.HandshakeTimeout.Duration),
		binance.NewDecoder(a.cfg.Exchange.Symbols, a.cfg.Exchange.EventType),
		ingest, deps.Stats, a.logger,
	)

	var fallback feed.Fallback
	if poll {
		// Shares the stream's ingestor so both feed one batch.
		fallback = a.pollerFor(deps, ingest)
	}

	supervisor := feed.NewSupervisor(feed.SupervisorConfig{
		MaxAttempts: a.cfg.Stream.MaxAttempts,
		Backoff: feed.BackoffPolicy{
			Cap:          a.cfg.Stream.BackoffCap.Duration,
			RejectionCap: a.cfg.Stream.MaxRejectionBackoff.Duration,
			JitterMax:    a.cfg.Stream.JitterMax.Duration,
		},
	}, session, fallback, a.logger, feed.WithStateHook(relay.Observe))
	sup.set(supervisor)

	g.Go(func() error {
		return relay.Run(ctx)
	})
	g.Go(func() error {
		return supervisor.Run(ctx)
	})

	return g.Wait()
}

// startSupport launches the background workers shared by every mode and
// returns the live hub when the HTTP server is enabled.
func (a *App) startSupport(ctx context.Context, g *errgroup.Group, deps *Dependencies, conn handler.ConnectionReader) *ws.Hub {
	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return deps.RecordWriter.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			pattern := a.cfg.Record.CSVPrefix + "-*.csv"
			n, err := deps.Archiver.Sweep(ctx, a.cfg.Record.CSVDir, pattern, todayCSV(deps.CSV))
			if err != nil {
				a.logger.WarnContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived pending record files", slog.Int("files", n))
			}
			return deps.Archiver.Run(ctx)
		})
	}

	if !a.cfg.Server.Enabled {
		return nil
	}

	status := handler.NewStatusHandler(handler.StatusSources{
		Mode:       a.cfg.Mode,
		Symbols:    a.cfg.Exchange.Symbols,
		Connection: conn,
		Stats:      deps.Stats,
		Throttle:   deps.Throttle,
		Tracked:    deps.Store.Len,
		Passes:     deps.Batch.Passes,
	})
	hub := ws.NewHub([]string{feed.ObservationChannel, ConnectionChannel},
		func() any { return status.Snapshot() }, a.logger)

	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.HealthChecks {
		health.Register(name, check)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    health,
		Status:    status,
		Markets:   handler.NewMarketHandler(deps.Store, deps.History, a.logger, deps.Latest...),
		Dashboard: handler.NewDashboardHandler(deps.Store, status, a.logger),
		Live:      hub,
	}, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Run(ctx)
	})
	return hub
}

// newIngestor builds the shared ingestor. When a cache, bus or live hub is
// present it also starts the mirror worker on g.
func (a *App) newIngestor(ctx context.Context, g *errgroup.Group, deps *Dependencies, live *ws.Hub) *feed.Ingestor {
	var pubs publishers
	if deps.Bus != nil {
		pubs = append(pubs, deps.Bus)
	}
	if live != nil {
		pubs = append(pubs, live)
	}

	ingestDeps := feed.IngestorDeps{
		Store:    deps.Store,
		Throttle: deps.Throttle,
		Batch:    deps.Batch,
		Records:  deps.Records,
		Notifier: deps.Dispatcher,
	}
	if deps.Cache != nil || len(pubs) > 0 {
		var cache domain.ObservationCache
		if deps.Cache != nil {
			cache = deps.Cache
		}
		var pub domain.EventPublisher
		if len(pubs) > 0 {
			pub = pubs
		}
		mirror := feed.NewMirror(cache, pub, mirrorQueueSize, a.logger)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
		ingestDeps.Mirror = mirror
	}
	return feed.NewIngestor(ingestDeps, a.logger)
}

func (a *App) pollerFor(deps *Dependencies, ingest *feed.Ingestor) *feed.Poller {
	return feed.NewPoller(feed.PollerConfig{
		Interval:       a.cfg.Fallback.Interval.Duration,
		RequestTimeout: a.cfg.Fallback.RequestTimeout.Duration,
	},
		binance.NewRESTClient(a.cfg.Exchange.RESTURL, a.cfg.Fallback.RequestTimeout.Duration),
		a.cfg.Exchange.Symbols, ingest, deps.Stats, a.logger,
	)
}

// lazyConnection lets the status handler be built before the supervisor.
type lazyConnection struct {
	sup atomic.Pointer[feed.Supervisor]
}

func (l *lazyConnection) set(s *feed.Supervisor) { l.sup.Store(s) }

func (l *lazyConnection) State() domain.ConnectionState {
	s := l.sup.Load()
	if s == nil {
		return domain.ConnectionState{Phase: domain.PhaseDisconnected}
	}
	return s.State()
}

// stateRelay moves supervisor transitions off the supervisor goroutine and
// publishes them to the event bus and live clients.
type stateRelay struct {
	bus    *redis.EventBus
	hub    *ws.Hub
	ch     chan domain.ConnectionState
	logger *slog.Logger
}

func newStateRelay(bus *redis.EventBus, logger *slog.Logger) *stateRelay {
	return &stateRelay{
		bus:    bus,
		ch:     make(chan domain.ConnectionState, 16),
		logger: logger.With(slog.String("component", "state_relay")),
	}
}

// Observe queues st; a full queue drops the transition.
func (r *stateRelay) Observe(st domain.ConnectionState) {
	select {
	case r.ch <- st:
	default:
		r.logger.Debug("state relay full, dropping transition", slog.String("phase", string(st.Phase)))
	}
}

// Run publishes queued transitions until ctx is cancelled.
func (r *stateRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-r.ch:
			r.publish(ctx, st)
		}
	}
}

func (r *stateRelay) publish(ctx context.Context, st domain.ConnectionState) {
	if r.bus != nil {
		if err := r.bus.PublishState(ctx, st); err != nil {
			r.logger.DebugContext(ctx, "publish state to bus", slog.String("error", err.Error()))
		}
	}
	if r.hub != nil {
		payload, err := json.Marshal(st)
		if err != nil {
			return
		}
		if err := r.hub.Publish(ctx, ConnectionChannel, payload); err != nil {
			r.logger.DebugContext(ctx, "publish state to live clients", slog.String("error", err.Error()))
		}
	}
}
