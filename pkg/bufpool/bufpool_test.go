package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPicksSmallestFittingClass(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Zero", 0, FrameSize},
		{"Frame", 100, FrameSize},
		{"FrameBoundary", FrameSize, FrameSize},
		{"Chunk", FrameSize + 1, ChunkSize},
		{"ChunkBoundary", ChunkSize, ChunkSize},
		{"Large", ChunkSize + 1, LargeSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestOversizedIsNotPooled(t *testing.T) {
	buf := Get(LargeSize + 1)
	assert.Len(t, buf, LargeSize+1)
	assert.Equal(t, len(buf), cap(buf))
	Put(buf)
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	p := NewPool(16, 32)
	p.Put(nil)
	p.Put(make([]byte, 20))

	buf := p.Get(20)
	assert.Equal(t, 32, cap(buf))
}

func TestReusedBufferHasRequestedLength(t *testing.T) {
	p := NewPool(16)
	buf := p.Get(16)
	buf[0] = 0xff
	p.Put(buf[:3])

	again := p.Get(8)
	assert.Len(t, again, 8)
	assert.Equal(t, 16, cap(again))
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := Get((n*j)%(2*ChunkSize) + 1)
				b[0] = byte(n)
				Put(b)
			}
		}(i)
	}
	wg.Wait()
}
