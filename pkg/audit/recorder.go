package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/hsync/internal/logger"
)

const (
	// DefaultBufferSize is the number of entries that may be queued before
	// Record starts dropping.
	DefaultBufferSize = 1024

	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
)

// RecorderOptions tunes a Recorder.
type RecorderOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration

	// OnDrop is called for every entry discarded because the queue was full.
	OnDrop func()
}

// Recorder queues entries and writes them to a Sink from a single
// background goroutine. A nil *Recorder is valid and records nothing.
type Recorder struct {
	sink    Sink
	opts    RecorderOptions
	queue   chan Entry
	dropped atomic.Uint64
	written atomic.Uint64

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop it.
func NewRecorder(sink Sink, opts RecorderOptions) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}

	r := &Recorder{
		sink:    sink,
		opts:    opts,
		queue:   make(chan Entry, opts.BufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e without blocking. Time is filled in when zero.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	select {
	case <-r.closing:
		r.drop()
		return
	default:
	}

	select {
	case r.queue <- e:
	default:
		r.drop()
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	if r.opts.OnDrop != nil {
		r.opts.OnDrop()
	}
}

// Dropped returns the number of entries discarded so far.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Written returns the number of entries handed to the sink successfully.
func (r *Recorder) Written() uint64 {
	if r == nil {
		return 0
	}
	return r.written.Load()
}

// Reader returns the sink as a Reader when it supports queries.
func (r *Recorder) Reader() (Reader, bool) {
	if r == nil {
		return nil, false
	}
	rd, ok := r.sink.(Reader)
	return rd, ok
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, r.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.sink.Write(ctx, batch); err != nil {
			logger.Warn("Failed to write audit entries", "count", len(batch), logger.Err(err))
		} else {
			r.written.Add(uint64(len(batch)))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.closing:
			for {
				select {
				case e := <-r.queue:
					batch = append(batch, e)
					if len(batch) >= r.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close drains the queue into the sink, then closes the sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		close(r.closing)
		<-r.done
		err = r.sink.Close()
	})
	return err
}
