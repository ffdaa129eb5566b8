// Package engine serves the hsync protocol on transport connections.
//
// Every connection owns one session. Every stream on a connection carries
// exactly one command: a request frame, an optional upload body, a single
// response frame, and an optional download body. Streams run concurrently
// and only contend on the session's navigation lock.
package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/internal/telemetry"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/digestindex"
	"github.com/marmos91/hsync/pkg/metrics"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/sandbox"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transfer"
	"github.com/marmos91/hsync/pkg/transport"
)

// Config holds the engine settings. Zero values select defaults.
type Config struct {
	// ServerName and Version are reported by the status command.
	ServerName string
	Version    string

	// MaxFrameSize bounds request frames.
	MaxFrameSize int

	// ChunkSize is the unit of body transfer.
	ChunkSize int
}

func (c *Config) applyDefaults() {
	if c.ServerName == "" {
		c.ServerName = "hsync"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = transfer.DefaultChunkSize
	}
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithDigestIndex caches file digests so downloads need not rehash.
func WithDigestIndex(idx *digestindex.Index) Option {
	return func(e *Engine) { e.index = idx }
}

// WithAudit records connection and command events.
func WithAudit(r *audit.Recorder) Option {
	return func(e *Engine) { e.audit = r }
}

// WithMetrics records command metrics. A nil value disables them.
func WithMetrics(m metrics.ServerMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine dispatches commands for all connections of a server.
type Engine struct {
	cfg      Config
	sandbox  *sandbox.Sandbox
	sessions *session.Manager
	index    *digestindex.Index
	audit    *audit.Recorder
	metrics  metrics.ServerMetrics
	started  time.Time
}

// New creates an engine serving the tree under sb.
func New(cfg Config, sb *sandbox.Sandbox, sessions *session.Manager, opts ...Option) *Engine {
	cfg.applyDefaults()
	if sessions == nil {
		sessions = session.NewManager()
	}
	e := &Engine{
		cfg:      cfg,
		sandbox:  sb,
		sessions: sessions,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions returns the session registry.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Root returns the sandbox root.
func (e *Engine) Root() string {
	return e.sandbox.Root()
}

// StartedAt returns when the engine was created.
func (e *Engine) StartedAt() time.Time {
	return e.started
}

func (e *Engine) transferOptions() transfer.Options {
	return transfer.Options{ChunkSize: e.cfg.ChunkSize}
}

// ServeConn serves conn until it closes or ctx is cancelled. It creates the
// connection's session on entry and deletes it once every stream handler
// has returned. ServeConn does not close conn.
func (e *Engine) ServeConn(ctx context.Context, conn transport.Conn) {
	remote := conn.RemoteAddr().String()
	sess := e.sessions.Create(remote)
	e.setActiveSessions()

	lc := logger.NewLogContext(sess.ID, remote)
	ctx = logger.WithContext(ctx, lc)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanConnection)
	span.SetAttributes(telemetry.SessionID(sess.ID), telemetry.ClientAddr(remote))
	defer span.End()

	logger.InfoCtx(ctx, "Session opened")
	e.audit.Record(audit.Entry{
		Event:      audit.EventConnect,
		SessionID:  sess.ID,
		ClientAddr: remote,
		OK:         true,
	})

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		e.sessions.Delete(sess.ID)
		e.setActiveSessions()
		e.audit.Record(audit.Entry{
			Event:      audit.EventDisconnect,
			SessionID:  sess.ID,
			ClientAddr: remote,
			OK:         true,
			DurationMs: time.Since(sess.CreatedAt).Milliseconds(),
		})
		logger.InfoCtx(ctx, "Session closed",
			"commands", sess.Commands(),
			logger.DurationMs(lc.DurationMs()))
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				logger.DebugCtx(ctx, "Stopped accepting streams", logger.Err(err))
			} else {
				logger.DebugCtx(ctx, "Connection ended", logger.Err(err))
			}
			return
		}

		wg.Add(1)
		go func(st transport.Stream) {
			defer wg.Done()
			defer e.recoverStream(ctx, st)
			e.ServeStream(ctx, sess, st)
		}(stream)
	}
}

// recoverStream keeps a panicking handler from taking the process down.
// Panics inside dispatch are turned into responses; this catches the rest.
func (e *Engine) recoverStream(ctx context.Context, st transport.Stream) {
	if r := recover(); r != nil {
		logger.ErrorCtx(ctx, "Panic in stream handler",
			logger.KeyStreamID, st.ID(),
			"panic", r,
			"stack", string(debug.Stack()))
		st.CancelRead()
		st.CancelWrite()
	}
}

func (e *Engine) setActiveSessions() {
	if e.metrics != nil {
		e.metrics.SetActiveSessions(e.sessions.Count())
	}
}
