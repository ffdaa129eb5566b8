// Package bufpool provides reusable byte slices for frame decoding and file
// chunk copies.
//
// Buffers come from three size classes:
//   - Frame buffers (4KiB): request and response frames
//   - Chunk buffers (64KiB): the default transfer chunk
//   - Large buffers (1MiB): configured large chunks and big listings
//
// Requests above the large class are allocated directly and never pooled.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

const (
	FrameSize = 4 << 10
	ChunkSize = 64 << 10
	LargeSize = 1 << 20
)

// Pool is a set of sync.Pools keyed by size class.
type Pool struct {
	classes []int
	pools   []sync.Pool
}

// NewPool creates a pool with the given ascending size classes. With no
// arguments the default classes are used.
func NewPool(classes ...int) *Pool {
	if len(classes) == 0 {
		classes = []int{FrameSize, ChunkSize, LargeSize}
	}
	p := &Pool{
		classes: classes,
		pools:   make([]sync.Pool, len(classes)),
	}
	for i, size := range classes {
		size := size
		p.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// Get returns a slice of length size. Its capacity is that of the smallest
// class that fits. Callers must hand it back with Put.
func (p *Pool) Get(size int) []byte {
	for i, c := range p.classes {
		if size <= c {
			b := *(p.pools[i].Get().(*[]byte))
			return b[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Slices whose capacity matches no class are
// left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i, c := range p.classes {
		if cap(buf) == c {
			b := buf[:c]
			p.pools[i].Put(&b)
			return
		}
	}
}

var global = NewPool()

// Get returns a buffer from the process-wide pool.
func Get(size int) []byte {
	return global.Get(size)
}

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) {
	global.Put(buf)
}
