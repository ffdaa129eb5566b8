// Package server runs the connection lifecycle around the protocol engine:
// accepting connections, bounding their number, tracking them, and shutting
// them down gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/engine"
	"github.com/marmos91/hsync/pkg/metrics"
	"github.com/marmos91/hsync/pkg/transfer"
	"github.com/marmos91/hsync/pkg/transport"
)

// Config holds the connection-level settings.
type Config struct {
	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout is how long Serve waits for active connections to
	// finish after shutdown starts before closing them forcibly.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is the period of the connection summary log line.
	// 0 disables it.
	MetricsLogInterval time.Duration
}

// Server accepts connections from a transport.Listener and hands each one
// to the engine.
//
// Thread safety: all exported methods are safe for concurrent use. Shutdown
// is idempotent.
type Server struct {
	cfg     Config
	engine  *engine.Engine
	metrics metrics.ConnectionMetrics
	audit   *audit.Recorder

	listener   transport.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once Serve has a listener.
	ListenerReady chan struct{}

	activeConns  sync.WaitGroup
	connCount    atomic.Int32
	connections  sync.Map // remote address -> transport.Conn
	connSem      chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// serveCtx is passed to every connection and cancelled on shutdown.
	serveCtx    context.Context
	cancelServe context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records connection lifecycle metrics.
func WithMetrics(m metrics.ConnectionMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAudit records server start and stop events.
func WithAudit(r *audit.Recorder) Option {
	return func(s *Server) { s.audit = r }
}

// New creates a stopped server. Call Serve to start it.
func New(cfg Config, eng *engine.Engine, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
		logger.Debug("Connection limit", "max_connections", cfg.MaxConnections)
	} else {
		logger.Debug("Connection limit", "max_connections", "unlimited")
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		engine:        eng,
		connSem:       sem,
		shutdown:      make(chan struct{}),
		ListenerReady: make(chan struct{}),
		serveCtx:      serveCtx,
		cancelServe:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve sweeps stale upload artifacts under the root and then accepts
// connections from ln until ctx is cancelled or Stop is called. It returns
// nil after a graceful shutdown and an error if connections had to be
// closed forcibly. Serve owns ln and closes it.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	root := s.engine.Root()
	removed, err := transfer.SweepStale(root)
	if err != nil {
		_ = ln.Close()
		close(s.ListenerReady)
		return fmt.Errorf("failed to sweep root: %w", err)
	}
	if removed > 0 {
		logger.Info("Removed stale upload artifacts", "count", removed, logger.KeyRoot, root)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("Server listening", logger.KeyAddress, ln.Addr().String(), logger.KeyRoot, root)
	s.audit.Record(audit.Entry{Event: audit.EventServerStart, Path: root, Message: ln.Addr().String(), OK: true})

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received", logger.Err(ctx.Err()))
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.cfg.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	err = s.acceptLoop()
	s.audit.Record(audit.Entry{Event: audit.EventServerStop, Path: root, OK: err == nil, Message: errString(err)})
	return err
}

func (s *Server) acceptLoop() error {
	for {
		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		conn, err := s.listener.Accept(s.serveCtx)
		if err != nil {
			if s.connSem != nil {
				<-s.connSem
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}
			if errors.Is(err, transport.ErrClosed) {
				s.initiateShutdown()
				return s.gracefulShutdown()
			}
			logger.Debug("Error accepting connection", logger.Err(err))
			continue
		}

		s.track(conn)
	}
}

func (s *Server) track(conn transport.Conn) {
	addr := conn.RemoteAddr().String()

	s.activeConns.Add(1)
	active := s.connCount.Add(1)
	s.connections.Store(addr, conn)

	if s.metrics != nil {
		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(active)
	}
	logger.Debug("Connection accepted", logger.ClientAddr(addr), "active", active)

	go func() {
		defer func() {
			_ = conn.Close()
			s.connections.Delete(addr)
			s.activeConns.Done()
			remaining := s.connCount.Add(-1)
			if s.connSem != nil {
				<-s.connSem
			}
			if s.metrics != nil {
				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(remaining)
			}
			logger.Debug("Connection closed", logger.ClientAddr(addr), "active", remaining)
		}()

		s.engine.ServeConn(s.serveCtx, conn)
	}()
}

// initiateShutdown stops accepting connections and cancels the context
// every connection runs under. Safe to call more than once.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", logger.Err(err))
			}
		}
		s.listenerMu.Unlock()

		s.cancelServe()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for connections to drain,
// then closes the rest.
func (s *Server) gracefulShutdown() error {
	logger.Info("Graceful shutdown: waiting for active connections",
		"active", s.connCount.Load(), "timeout", s.cfg.ShutdownTimeout)

	if s.waitConnections(s.cfg.ShutdownTimeout) {
		logger.Info("Graceful shutdown complete")
		return nil
	}

	remaining := s.connCount.Load()
	logger.Warn("Shutdown timeout exceeded, forcing closure", "active", remaining)
	s.forceCloseConnections()
	s.waitConnections(5 * time.Second)
	return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
}

func (s *Server) waitConnections(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Server) forceCloseConnections() {
	closed := 0
	s.connections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(transport.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.ClientAddr(addr), logger.Err(err))
			return true
		}
		closed++
		if s.metrics != nil {
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	logger.Info("Force-closed connections", "count", closed)
}

// Stop initiates shutdown and waits until every connection has finished or
// ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Shutdown context cancelled", "active", s.connCount.Load(), logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (s *Server) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("Server metrics",
				"active_connections", s.connCount.Load(),
				"active_sessions", s.engine.Sessions().Count())
		}
	}
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr blocks until Serve has a listener and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
