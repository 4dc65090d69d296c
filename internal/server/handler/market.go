package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/market"
)

// HistoryReader returns recorded observations for a symbol, newest first.
type HistoryReader interface {
	History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Observation, error)
}

// LatestReader returns the most recent observation for a symbol, or
// domain.ErrNotFound.
type LatestReader interface {
	Latest(ctx context.Context, symbol string) (domain.Observation, error)
}

// MarketHandler serves the latest observation per symbol and, when a
// history store is configured, recorded observations.
type MarketHandler struct {
	store   *market.Store
	history HistoryReader
	latest  []LatestReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewMarketHandler creates a MarketHandler. history may be nil. latest are
// consulted in order when a symbol is not in the in-memory store, which is
// the case right after a restart.
func NewMarketHandler(store *market.Store, history HistoryReader, logger *slog.Logger, latest ...LatestReader) *MarketHandler {
	return &MarketHandler{
		store:   store,
		history: history,
		latest:  latest,
		logger:  logger.With(slog.String("handler", "markets")),
		now:     time.Now,
	}
}

// ListMarkets returns every tracked symbol ordered by name.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": h.store.Sorted(),
		"count":   h.store.Len(),
	})
}

// GetMarket returns the latest observation for one symbol.
// GET /api/markets/{symbol}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	obs, ok := h.store.Get(symbol)
	if !ok {
		obs, ok = h.lookup(r.Context(), symbol)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "symbol not tracked: "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (h *MarketHandler) lookup(ctx context.Context, symbol string) (domain.Observation, bool) {
	for _, src := range h.latest {
		obs, err := src.Latest(ctx, symbol)
		if err == nil {
			return obs, true
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "latest lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return domain.Observation{}, false
}

// GetHistory returns recorded observations for one symbol.
// GET /api/markets/{symbol}/history?since=6h&limit=100
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "history store not configured")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	since := h.now().Add(-queryDuration(r, "since", 24*time.Hour))
	limit := queryInt(r, "limit", 100, 1000)

	rows, err := h.history.History(r.Context(), symbol, since, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no history for "+symbol)
			return
		}
		h.logger.ErrorContext(r.Context(), "history query failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if rows == nil {
		rows = []domain.Observation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":       symbol,
		"since":        since.UTC().Format(time.RFC3339),
		"observations": rows,
	})
}
