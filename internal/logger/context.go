package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds the fields of one command exchange that every log line
// emitted while serving it should carry.
type LogContext struct {
	TraceID    string
	SessionID  string
	ClientAddr string
	StreamID   int64
	Command    string
	Path       string
	StartTime  time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a session on a connection.
func NewLogContext(sessionID, clientAddr string) *LogContext {
	return &LogContext{
		SessionID:  sessionID,
		ClientAddr: clientAddr,
		StartTime:  time.Now(),
	}
}

// Clone returns a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithStream returns a copy bound to a stream, restarting the clock.
func (lc *LogContext) WithStream(id int64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.StreamID = id
		c.StartTime = time.Now()
	}
	return c
}

// WithCommand returns a copy with the command name and its path argument set.
func (lc *LogContext) WithCommand(command, path string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Command = command
		c.Path = path
	}
	return c
}

// WithTrace returns a copy with the trace id set.
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
	}
	return c
}

// DurationMs returns the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
