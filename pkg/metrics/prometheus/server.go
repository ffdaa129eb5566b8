// Package prometheus implements the metrics hooks on client_golang.
// Import it for its side effect of registering the constructors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/hsync/pkg/metrics"
)

func init() {
	metrics.RegisterServerMetricsConstructor(func() metrics.ServerMetrics {
		m := NewServerMetrics(metrics.GetRegistry())
		if m == nil {
			return nil
		}
		return m
	})
}

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
// All methods are safe on a nil receiver.
type serverMetrics struct {
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec
	bytes            *prometheus.CounterVec
	sessions         prometheus.Gauge
	digestLookups    *prometheus.CounterVec
	auditDropped     prometheus.Counter

	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	connectionsActive      prometheus.Gauge
}

// NewServerMetrics registers the server collectors on reg. It returns nil
// when reg is nil.
func NewServerMetrics(reg prometheus.Registerer) *serverMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &serverMetrics{
		commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hsync_commands_total",
				Help: "Commands processed by command and outcome",
			},
			[]string{"command", "outcome"}, // outcome: ok or an error kind
		),
		commandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hsync_command_duration_seconds",
				Help:    "Command latency including body transfer",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"command"},
		),
		commandsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hsync_commands_in_flight",
				Help: "Commands currently executing",
			},
			[]string{"command"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hsync_transfer_bytes_total",
				Help: "File body bytes moved by direction",
			},
			[]string{"direction"},
		),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "hsync_sessions_active",
			Help: "Live sessions",
		}),
		digestLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hsync_digest_index_lookups_total",
				Help: "Digest index lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "hsync_audit_dropped_total",
			Help: "Audit entries dropped because the writer fell behind",
		}),
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "hsync_connections_accepted_total",
			Help: "Connections accepted",
		}),
		connectionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "hsync_connections_closed_total",
			Help: "Connections closed",
		}),
		connectionsForceClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "hsync_connections_force_closed_total",
			Help: "Connections force-closed after the shutdown timeout",
		}),
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "hsync_connections_active",
			Help: "Open connections",
		}),
	}
}

func (m *serverMetrics) RecordCommand(command string, duration time.Duration, errorKind string) {
	if m == nil {
		return
	}
	outcome := errorKind
	if outcome == "" {
		outcome = "ok"
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *serverMetrics) RecordCommandStart(command string) {
	if m == nil {
		return
	}
	m.commandsInFlight.WithLabelValues(command).Inc()
}

func (m *serverMetrics) RecordCommandEnd(command string) {
	if m == nil {
		return
	}
	m.commandsInFlight.WithLabelValues(command).Dec()
}

func (m *serverMetrics) RecordBytes(direction string, n uint64) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *serverMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(count))
}

func (m *serverMetrics) RecordDigestLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.digestLookups.WithLabelValues(result).Inc()
}

func (m *serverMetrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *serverMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.connectionsForceClosed.Inc()
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(count))
}
