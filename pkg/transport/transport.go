// Package transport abstracts the multiplexed, encrypted connection the
// protocol runs over. A connection carries many independent bidirectional
// streams; each stream carries exactly one command exchange.
//
// The production implementation is QUIC. An in-memory implementation with
// the same semantics backs the tests.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	// ErrClosed is returned by operations on a closed listener or connection.
	ErrClosed = errors.New("transport: closed")
	// ErrStreamCanceled is seen by a writer whose peer stopped reading.
	ErrStreamCanceled = errors.New("transport: stream canceled by peer")
	// ErrStreamReset is seen by a reader whose peer abandoned its writes.
	ErrStreamReset = errors.New("transport: stream reset by peer")
)

// Stream is one bidirectional stream.
type Stream interface {
	io.Reader
	io.Writer

	// Close finishes the send direction. The peer reads EOF once it has
	// consumed everything written before.
	Close() error
	// CancelRead tells the peer to stop sending; its pending and future
	// writes fail.
	CancelRead()
	// CancelWrite abandons the send direction; the peer's reads fail
	// instead of returning EOF.
	CancelWrite()
	// ID identifies the stream within its connection.
	ID() int64
}

// Conn is one client connection.
type Conn interface {
	// AcceptStream waits for the peer to open a stream.
	AcceptStream(ctx context.Context) (Stream, error)
	// OpenStream opens a new stream to the peer.
	OpenStream(ctx context.Context) (Stream, error)
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	// Close tears the connection down, failing every open stream.
	Close() error
	// Done is closed once the connection is gone, by either side.
	Done() <-chan struct{}
}

// Listener accepts connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}
