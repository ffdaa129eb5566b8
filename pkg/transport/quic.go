package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Application error codes sent with QUIC stream and connection closes.
const (
	codeCanceled     = 1
	codeShuttingDown = 2
)

// DefaultMaxStreams bounds concurrent streams per connection when unset.
const DefaultMaxStreams = 100

// QUICConfig tunes the QUIC transport.
type QUICConfig struct {
	// MaxIncomingStreams bounds concurrently open streams per connection.
	MaxIncomingStreams int64
	// IdleTimeout closes connections without traffic for this long.
	IdleTimeout time.Duration
	// KeepAlive sends keep-alive packets at this period; 0 disables them.
	KeepAlive time.Duration
}

func (c QUICConfig) quic() *quic.Config {
	maxStreams := c.MaxIncomingStreams
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	return &quic.Config{
		MaxIncomingStreams: maxStreams,
		MaxIdleTimeout:     c.IdleTimeout,
		KeepAlivePeriod:    c.KeepAlive,
	}
}

type quicListener struct {
	ln *quic.Listener
}

// ListenQUIC listens for QUIC connections on addr. tlsConf must carry a
// certificate; ALPN is set to the protocol identifier if empty.
func ListenQUIC(addr string, tlsConf *tls.Config, cfg QUICConfig) (Listener, error) {
	ln, err := quic.ListenAddr(addr, withALPN(tlsConf), cfg.quic())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	c, err := l.ln.Accept(ctx)
	if err != nil {
		if errors.Is(err, quic.ErrServerClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return &quicConn{c: c}, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error { return l.ln.Close() }

// DialQUIC opens a QUIC connection to addr.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config, cfg QUICConfig) (Conn, error) {
	c, err := quic.DialAddr(ctx, addr, withALPN(tlsConf), cfg.quic())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &quicConn{c: c}, nil
}

type quicConn struct {
	c quic.Connection
}

func (q *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := q.c.AcceptStream(ctx)
	if err != nil {
		return nil, mapConnErr(err)
	}
	return &quicStream{s: s}, nil
}

func (q *quicConn) OpenStream(ctx context.Context) (Stream, error) {
	s, err := q.c.OpenStreamSync(ctx)
	if err != nil {
		return nil, mapConnErr(err)
	}
	return &quicStream{s: s}, nil
}

func (q *quicConn) RemoteAddr() net.Addr { return q.c.RemoteAddr() }

func (q *quicConn) LocalAddr() net.Addr { return q.c.LocalAddr() }

func (q *quicConn) Close() error {
	return q.c.CloseWithError(codeShuttingDown, "closing")
}

func (q *quicConn) Done() <-chan struct{} { return q.c.Context().Done() }

func mapConnErr(err error) error {
	var appErr *quic.ApplicationError
	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &appErr) || errors.As(err, &idleErr) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

type quicStream struct {
	s quic.Stream
}

func (q *quicStream) Read(p []byte) (int, error) {
	n, err := q.s.Read(p)
	return n, mapStreamErr(err, ErrStreamReset)
}

func (q *quicStream) Write(p []byte) (int, error) {
	n, err := q.s.Write(p)
	return n, mapStreamErr(err, ErrStreamCanceled)
}

func (q *quicStream) Close() error { return q.s.Close() }

func (q *quicStream) CancelRead() { q.s.CancelRead(codeCanceled) }

func (q *quicStream) CancelWrite() { q.s.CancelWrite(codeCanceled) }

func (q *quicStream) ID() int64 { return int64(q.s.StreamID()) }

func mapStreamErr(err error, remote error) error {
	var se *quic.StreamError
	if errors.As(err, &se) && se.Remote {
		return fmt.Errorf("%w: %v", remote, err)
	}
	return err
}
