// Package report renders notification text for periodic reports and
// threshold alerts.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

var funcs = template.FuncMap{
	"price":   formatPrice,
	"volume":  formatVolume,
	"percent": formatPercent,
	"arrow":   arrow,
	"utc":     func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
}

var (
	reportTmpl = template.Must(template.New("report").Funcs(funcs).Parse(
		`{{range .Rows}}{{arrow .ChangePercent}} {{.Symbol}}  {{price .Price}}  {{percent .ChangePercent}}  vol {{volume .Volume}}
{{end}}as of {{utc .At}}`))

	alertTmpl = template.Must(template.New("alert").Funcs(funcs).Parse(
		`{{arrow .Obs.ChangePercent}} {{.Obs.Symbol}} moved {{percent .Obs.ChangePercent}} in 24h
price {{price .Obs.Price}}  vol {{volume .Obs.Volume}}
threshold {{printf "%.2f" .Threshold}}%`))
)

type reportData struct {
	Rows []domain.Observation
	At   time.Time
}

type alertData struct {
	Obs       domain.Observation
	Threshold float64
}

// Report renders a multi-symbol report. Rows are ordered by symbol.
func Report(kind domain.NotificationKind, batch map[string]domain.Observation, at time.Time) (title, text string, err error) {
	rows := make([]domain.Observation, 0, len(batch))
	for _, o := range batch {
		rows = append(rows, o)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, reportData{Rows: rows, At: at}); err != nil {
		return "", "", fmt.Errorf("report: render %s: %w", kind, err)
	}

	title = "Market report"
	if kind == domain.KindHourly {
		title = "Hourly market report"
	}
	return title, buf.String(), nil
}

// Alert renders a single-symbol threshold alert.
func Alert(obs domain.Observation, threshold float64) (title, text string, err error) {
	var buf bytes.Buffer
	if err := alertTmpl.Execute(&buf, alertData{Obs: obs, Threshold: threshold}); err != nil {
		return "", "", fmt.Errorf("report: render alert: %w", err)
	}
	return fmt.Sprintf("Alert: %s %s", obs.Symbol, formatPercent(obs.ChangePercent)), buf.String(), nil
}

func arrow(change float64) string {
	switch {
	case change > 0:
		return "▲"
	case change < 0:
		return "▼"
	default:
		return "•"
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// formatPrice keeps more precision for sub-unit prices.
func formatPrice(v float64) string {
	switch {
	case v >= 1000:
		return groupThousands(fmt.Sprintf("%.2f", v))
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}

func formatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func groupThousands(s string) string {
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
