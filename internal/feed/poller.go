package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/metrics"
)

// TickerSource fetches a point-in-time ticker for one symbol.
type TickerSource interface {
	Ticker24h(ctx context.Context, symbol string) (domain.Observation, error)
}

// PollerConfig holds the fallback timings.
type PollerConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Poller is the degraded-mode replacement for the stream. Each pass issues
// one request per symbol, sequentially, and feeds results through the same
// Ingestor as the stream.
type Poller struct {
	cfg     PollerConfig
	source  TickerSource
	symbols []string
	ingest  *Ingestor
	stats   *Stats
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewPoller creates a Poller for symbols.
func NewPoller(cfg PollerConfig, source TickerSource, symbols []string, ingest *Ingestor, stats *Stats, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:     cfg,
		source:  source,
		symbols: symbols,
		ingest:  ingest,
		stats:   stats,
		logger:  logger.With(slog.String("component", "poller")),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Run polls immediately and then every Interval until ctx is cancelled. The
// full interval is always waited, whatever the outcome of the pass.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "polling fallback started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("symbols", len(p.symbols)),
	)
	p.ingest.BeginPass()

	for {
		p.PollOnce(ctx)
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			p.logger.Info("polling fallback stopped")
			return nil
		}
	}
}

// PollOnce runs one pass and returns the number of successful and failed
// requests. A failed symbol is logged and skipped.
func (p *Poller) PollOnce(ctx context.Context) (ok, failed int) {
	start := p.now()
	for _, sym := range p.symbols {
		if ctx.Err() != nil {
			return ok, failed
		}

		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		obs, err := p.source.Ticker24h(reqCtx, sym)
		cancel()
		if err != nil {
			failed++
			metrics.PollRequests.WithLabelValues("error").Inc()
			p.logger.WarnContext(ctx, "fallback request failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}

		ok++
		metrics.PollRequests.WithLabelValues("ok").Inc()
		p.ingest.Accept(ctx, obs)
	}

	p.stats.PollCompleted(p.now())
	p.logger.DebugContext(ctx, "fallback pass complete",
		slog.Int("ok", ok),
		slog.Int("failed", failed),
		slog.Duration("elapsed", p.now().Sub(start)),
	)
	return ok, failed
}
