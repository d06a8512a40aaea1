package device

import (
	"context"
	"sync"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/device"
)

// Ensure implementation satisfies interface at compile time.
var _ device.Stream = (*Stream)(nil)

// Stream runs enqueued operations in FIFO order on a single goroutine.
// Host-to-device transfers are modelled as operations; Synchronize drains them.
type Stream struct {
	ops    chan func()
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewStream starts a stream whose queue holds up to depth pending operations.
func NewStream(depth int) *Stream {
	if depth < 1 {
		depth = 1
	}
	s := &Stream{
		ops:  make(chan func(), depth),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for op := range s.ops {
		op()
	}
}

// Enqueue schedules op after all previously enqueued operations.
// Operations enqueued after Close are dropped.
func (s *Stream) Enqueue(op func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	s.ops <- op
}

// Synchronize blocks until every operation enqueued before the call has run.
func (s *Stream) Synchronize(ctx context.Context) error {
	marker := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.ErrStreamClosed
	}
	select {
	case s.ops <- func() { close(marker) }:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CopyAsync enqueues a copy of src into dst on stream.
func CopyAsync[T any](stream device.Stream, dst, src []T) {
	stream.Enqueue(func() {
		copy(dst, src)
	})
}

// Close drains pending operations and stops the stream goroutine.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ops)
	s.mu.Unlock()

	<-s.done
}
