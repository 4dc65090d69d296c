// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickerwatch"

var (
	// MessagesTotal counts stream frames by outcome: accepted, discarded, malformed.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_messages_total",
		Help:      "Stream frames received, by decode outcome.",
	}, []string{"result"})

	SessionFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_session_faults_total",
		Help:      "Terminated stream sessions, by fault kind.",
	}, []string{"kind"})

	ReconnectAttempt = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_reconnect_attempt",
		Help:      "Current consecutive reconnect attempt.",
	})

	BackoffSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stream_backoff_seconds",
		Help:      "Backoff delay applied before reconnecting.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ConnectionPhase is 1 for the current phase and 0 for all others.
	ConnectionPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_phase",
		Help:      "Current connection phase.",
	}, []string{"phase"})

	PollRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_requests_total",
		Help:      "Fallback ticker requests, by result.",
	}, []string{"result"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications by kind and result: dispatched, delivered, failed, dropped.",
	}, []string{"kind", "result"})

	RecordAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_appends_total",
		Help:      "Record store appends, by sink and result.",
	}, []string{"sink", "result"})

	ArchiveUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_uploads_total",
		Help:      "Rotated record files sent to object storage, by result.",
	}, []string{"result"})

	TrackedSymbols = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_symbols",
		Help:      "Symbols with at least one observation.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		SessionFaults,
		ReconnectAttempt,
		BackoffSeconds,
		ConnectionPhase,
		PollRequests,
		Notifications,
		RecordAppends,
		ArchiveUploads,
		TrackedSymbols,
	)
}

// SetPhase marks phase as current in ConnectionPhase.
func SetPhase(phase string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1
		}
		ConnectionPhase.WithLabelValues(p).Set(v)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
