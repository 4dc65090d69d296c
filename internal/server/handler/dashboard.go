package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/market"
)

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"price":   func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	"pct":     func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + "%" },
	"up":      func(v float64) bool { return v >= 0 },
	"ago":     func(t time.Time, now time.Time) string { return now.Sub(t).Truncate(time.Second).String() },
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="10">
<title>tickerwatch</title>
<style>
body { font-family: monospace; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 0.2em 1em; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.up { color: #080; } .down { color: #b00; }
</style>
</head>
<body>
<h1>tickerwatch</h1>
<p>status <b>{{.Status.Status}}</b> ({{.Status.Connection.Phase}}{{with .Status.Connection.Reason}}: {{.}}{{end}})
 &middot; mode {{.Status.Mode}} &middot; {{.Status.Stats.MessagesProcessed}} messages
 &middot; up {{.Status.UptimeSeconds}}s</p>
<table>
<tr><th>symbol</th><th>price</th><th>24h</th><th>volume</th><th>updated</th></tr>
{{range .Markets}}<tr>
<td>{{.Symbol}}</td>
<td>{{price .Price}}</td>
<td class="{{if up .ChangePercent}}up{{else}}down{{end}}">{{pct .ChangePercent}}</td>
<td>{{price .Volume}}</td>
<td title="{{rfc3339 .ObservedAt}}">{{ago .ObservedAt $.Now}} ago</td>
</tr>{{else}}<tr><td colspan="5">no observations yet</td></tr>{{end}}
</table>
</body>
</html>
`))

type dashboardView struct {
	Status  StatusResponse
	Markets []domain.Observation
	Now     time.Time
}

// DashboardHandler renders the HTML status page.
type DashboardHandler struct {
	store  *market.Store
	status *StatusHandler
	logger *slog.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(store *market.Store, status *StatusHandler, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		store:  store,
		status: status,
		logger: logger.With(slog.String("handler", "dashboard")),
	}
}

// Render writes the dashboard.
// GET /{$}
func (h *DashboardHandler) Render(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{
		Status:  h.status.Snapshot(),
		Markets: h.store.Sorted(),
		Now:     time.Now(),
	}
	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		h.logger.ErrorContext(r.Context(), "render dashboard", slog.String("error", err.Error()))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
