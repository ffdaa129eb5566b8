package metrics

import "time"

// ServerMetrics observes the sync server: connections, sessions, commands
// and transferred bytes.
//
// Example usage:
//
//	metrics.InitRegistry()
//	m := metrics.NewServerMetrics() // nil when metrics are disabled
//	eng := engine.New(cfg, sb, sessions, engine.WithMetrics(m))
type ServerMetrics interface {
	// RecordCommand records a finished command. errorKind is empty on success.
	RecordCommand(command string, duration time.Duration, errorKind string)

	// RecordCommandStart increments the in-flight gauge for command.
	RecordCommandStart(command string)

	// RecordCommandEnd decrements the in-flight gauge for command.
	RecordCommandEnd(command string)

	// RecordBytes adds n bytes moved in direction "upload" or "download".
	RecordBytes(direction string, n uint64)

	// SetActiveSessions updates the live session gauge.
	SetActiveSessions(count int)

	// RecordDigestLookup records a digest index lookup outcome.
	RecordDigestLookup(hit bool)

	// RecordAuditDropped counts audit entries dropped because the writer
	// fell behind.
	RecordAuditDropped()

	ConnectionMetrics
}

// ConnectionMetrics is the subset used by the connection accept loop.
type ConnectionMetrics interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// Directions for RecordBytes.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

var newPrometheusServerMetrics func() ServerMetrics

// RegisterServerMetricsConstructor is called by the prometheus subpackage
// during initialization. The indirection keeps this package free of the
// implementation.
func RegisterServerMetricsConstructor(constructor func() ServerMetrics) {
	newPrometheusServerMetrics = constructor
}

// NewServerMetrics returns the Prometheus implementation, or nil when
// metrics are disabled or the implementation is not linked in.
func NewServerMetrics() ServerMetrics {
	if !IsEnabled() || newPrometheusServerMetrics == nil {
		return nil
	}
	return newPrometheusServerMetrics()
}
