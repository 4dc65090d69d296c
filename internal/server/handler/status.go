package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/feed"
	"github.com/alanyoungcy/tickerwatch/internal/throttle"
)

// ConnectionReader exposes the supervisor's current state.
type ConnectionReader interface {
	State() domain.ConnectionState
}

// StatusSources are the read-only views the status endpoint reports.
type StatusSources struct {
	Mode       string
	Symbols    []string
	Connection ConnectionReader
	Stats      *feed.Stats
	Throttle   *throttle.Throttle
	StartedAt  time.Time
	Tracked    func() int
	Passes     func() uint64
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Mode           string                 `json:"mode"`
	Status         string                 `json:"status"`
	Connection     domain.ConnectionState `json:"connection"`
	Stats          feed.StatsSnapshot     `json:"stats"`
	Symbols        []string               `json:"symbols"`
	TrackedSymbols int                    `json:"tracked_symbols"`
	BatchPasses    uint64                 `json:"batch_passes"`
	UptimeSeconds  int64                  `json:"uptime_seconds"`
	Throttle       throttle.State         `json:"throttle"`
}

// StatusHandler serves process status for operators and the dashboard.
type StatusHandler struct {
	src StatusSources
	now func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(src StatusSources) *StatusHandler {
	if src.StartedAt.IsZero() {
		src.StartedAt = time.Now()
	}
	return &StatusHandler{src: src, now: time.Now}
}

// Snapshot assembles the current status.
func (h *StatusHandler) Snapshot() StatusResponse {
	conn := h.src.Connection.State()
	resp := StatusResponse{
		Mode:          h.src.Mode,
		Status:        conn.Status(),
		Connection:    conn,
		Symbols:       h.src.Symbols,
		UptimeSeconds: int64(h.now().Sub(h.src.StartedAt).Seconds()),
	}
	if h.src.Stats != nil {
		resp.Stats = h.src.Stats.Snapshot()
	}
	if h.src.Tracked != nil {
		resp.TrackedSymbols = h.src.Tracked()
	}
	if h.src.Passes != nil {
		resp.BatchPasses = h.src.Passes()
	}
	if h.src.Throttle != nil {
		resp.Throttle = h.src.Throttle.State()
	}
	return resp
}

// GetStatus responds with Snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// StaticConnection reports a fixed phase. Poll-only mode uses it since no
// supervisor runs there.
type StaticConnection struct {
	Phase domain.ConnectionPhase
	Since time.Time
}

// State implements ConnectionReader.
func (s StaticConnection) State() domain.ConnectionState {
	return domain.ConnectionState{Phase: s.Phase, Since: s.Since}
}
