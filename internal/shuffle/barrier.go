package shuffle

import (
	"context"
	"fmt"
	"sync"

	"github.com/jittakal/edgeshuffle/internal/errors"
)

// barrier is a reusable n-party rendezvous that can be broken.
// Once broken, every current and future Wait fails with ErrFleetBroken.
type barrier struct {
	n      int
	mu     sync.Mutex
	count  int
	gen    chan struct{}
	broken chan struct{}
	cause  error
}

func newBarrier(n int) *barrier {
	return &barrier{
		n:      n,
		gen:    make(chan struct{}),
		broken: make(chan struct{}),
	}
}

// Wait blocks until n parties have called Wait for the current generation.
// If ctx ends first the barrier is broken for every party.
func (b *barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.cause != nil {
		cause := b.cause
		b.mu.Unlock()
		return fmt.Errorf("%w: %w", errors.ErrFleetBroken, cause)
	}
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen = make(chan struct{})
		close(gen)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-gen:
		return nil
	case <-b.broken:
		select {
		case <-gen:
			return nil
		default:
		}
		return fmt.Errorf("%w: %w", errors.ErrFleetBroken, b.err())
	case <-ctx.Done():
		b.abort(ctx.Err())
		return fmt.Errorf("%w: %w", errors.ErrFleetBroken, ctx.Err())
	}
}

// abort breaks the barrier with cause. Only the first cause is kept.
func (b *barrier) abort(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cause != nil {
		return
	}
	b.cause = cause
	close(b.broken)
}

func (b *barrier) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}
