package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// memAddr is the net.Addr of in-memory endpoints.
type memAddr string

func (a memAddr) Network() string { return "memory" }
func (a memAddr) String() string  { return string(a) }

// memStream is one end of an in-memory stream built from two pipes. Pipes
// are unbuffered, so a writer blocks until the peer reads, which makes tests
// sensitive to the same ordering mistakes that would stall a real stream.
type memStream struct {
	id   int64
	r    *io.PipeReader
	w    *io.PipeWriter
	pair *memPair
	once sync.Once
}

// memPair holds both ends of a stream while it is registered with its
// connection. It leaves the registry once both ends stopped writing.
type memPair struct {
	a, b    *memStream
	closed  atomic.Int32
	aborted atomic.Bool
	release func(*memPair)
}

func newMemStreamPair(id int64) *memPair {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	p := &memPair{}
	p.a = &memStream{id: id, r: ar, w: aw, pair: p}
	p.b = &memStream{id: id, r: br, w: bw, pair: p}
	return p
}

func (p *memPair) abort() {
	p.aborted.Store(true)
	p.a.abort()
	p.b.abort()
}

func (s *memStream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	return n, s.mapErr(err)
}

func (s *memStream) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	return n, s.mapErr(err)
}

func (s *memStream) CancelRead() { _ = s.r.CloseWithError(ErrStreamCanceled) }
func (s *memStream) ID() int64   { return s.id }

// mapErr reports ErrClosed after an abort; a pipe closed from its own side
// only yields io.ErrClosedPipe.
func (s *memStream) mapErr(err error) error {
	if errors.Is(err, io.ErrClosedPipe) && s.pair.aborted.Load() {
		return ErrClosed
	}
	return err
}

func (s *memStream) Close() error {
	err := s.w.Close()
	s.doneWriting()
	return err
}

func (s *memStream) CancelWrite() {
	_ = s.w.CloseWithError(ErrStreamReset)
	s.doneWriting()
}

func (s *memStream) doneWriting() {
	s.once.Do(func() {
		if s.pair.closed.Add(1) == 2 && s.pair.release != nil {
			s.pair.release(s.pair)
		}
	})
}

func (s *memStream) abort() {
	_ = s.r.CloseWithError(ErrClosed)
	_ = s.w.CloseWithError(ErrClosed)
}

// MemoryConn is one end of an in-memory connection.
type MemoryConn struct {
	local, remote net.Addr
	peer          *MemoryConn
	incoming      chan Stream
	nextID        *atomic.Int64
	done          chan struct{}
	once          *sync.Once

	mu      *sync.Mutex
	streams map[*memPair]struct{}
}

// MemoryPipe returns the two ends of a connected in-memory connection.
func MemoryPipe(clientAddr, serverAddr string) (client, server *MemoryConn) {
	var (
		nextID atomic.Int64
		once   sync.Once
		mu     sync.Mutex
	)
	done := make(chan struct{})
	streams := make(map[*memPair]struct{})

	client = &MemoryConn{
		local: memAddr(clientAddr), remote: memAddr(serverAddr),
		incoming: make(chan Stream), nextID: &nextID, done: done, once: &once,
		mu: &mu, streams: streams,
	}
	server = &MemoryConn{
		local: memAddr(serverAddr), remote: memAddr(clientAddr),
		incoming: make(chan Stream), nextID: &nextID, done: done, once: &once,
		mu: &mu, streams: streams,
	}
	client.peer, server.peer = server, client
	return client, server
}

// AcceptStream waits for a stream opened by the peer.
func (c *MemoryConn) AcceptStream(ctx context.Context) (Stream, error) {
	select {
	case s := <-c.incoming:
		return s, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenStream opens a stream and hands the other end to the peer's
// AcceptStream.
func (c *MemoryConn) OpenStream(ctx context.Context) (Stream, error) {
	pair := newMemStreamPair(c.nextID.Add(4) - 4)
	pair.release = c.forget

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.streams[pair] = struct{}{}
	c.mu.Unlock()

	select {
	case c.peer.incoming <- pair.b:
		return pair.a, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		pair.abort()
		c.forget(pair)
		return nil, ctx.Err()
	}
}

func (c *MemoryConn) forget(p *memPair) {
	c.mu.Lock()
	delete(c.streams, p)
	c.mu.Unlock()
}

// openStreams counts streams not yet closed for writing on both ends.
func (c *MemoryConn) openStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *MemoryConn) RemoteAddr() net.Addr { return c.remote }

func (c *MemoryConn) LocalAddr() net.Addr { return c.local }

// Close closes both ends and fails every stream still open.
func (c *MemoryConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.done)
		pairs := make([]*memPair, 0, len(c.streams))
		for p := range c.streams {
			pairs = append(pairs, p)
			delete(c.streams, p)
		}
		c.mu.Unlock()

		for _, p := range pairs {
			p.abort()
		}
	})
	return nil
}

func (c *MemoryConn) Done() <-chan struct{} { return c.done }

// MemoryListener hands out in-memory connections created with Dial.
type MemoryListener struct {
	addr  memAddr
	conns chan Conn
	done  chan struct{}
	once  sync.Once
	seq   atomic.Int64
}

// NewMemoryListener creates a listener; Dial connects to it.
func NewMemoryListener(addr string) *MemoryListener {
	return &MemoryListener{
		addr:  memAddr(addr),
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
}

// Dial connects a new client to the listener.
func (l *MemoryListener) Dial(ctx context.Context) (*MemoryConn, error) {
	client, server := MemoryPipe(
		"client-"+strconv.FormatInt(l.seq.Add(1), 10),
		string(l.addr),
	)
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *MemoryListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *MemoryListener) Addr() net.Addr { return l.addr }

func (l *MemoryListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
