// Package device implements an in-process execution context for per-device edge lists.
package device

import (
	"fmt"
	"sync/atomic"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/device"
)

// Ensure implementation satisfies interface at compile time.
var _ device.Allocator = (*MemoryPool)(nil)

// MemoryPool accounts the device memory held by one device.
// A zero limit means the pool is unbounded.
type MemoryPool struct {
	rank  int
	limit int64
	used  atomic.Int64
	peak  atomic.Int64
}

// NewMemoryPool creates a memory pool with the given limit in bytes.
func NewMemoryPool(rank int, limitBytes int64) *MemoryPool {
	return &MemoryPool{rank: rank, limit: limitBytes}
}

// Reserve reserves bytes, failing with ErrOutOfMemory when the limit would be exceeded.
func (p *MemoryPool) Reserve(bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("negative reservation: %d bytes", bytes)
	}

	for {
		used := p.used.Load()
		next := used + bytes
		if p.limit > 0 && next > p.limit {
			return &errors.AllocationError{
				Rank:      p.rank,
				Requested: bytes,
				Used:      used,
				Limit:     p.limit,
				Err:       errors.ErrOutOfMemory,
			}
		}
		if p.used.CompareAndSwap(used, next) {
			p.updatePeak(next)
			return nil
		}
	}
}

// Release returns bytes to the pool.
func (p *MemoryPool) Release(bytes int64) {
	p.used.Add(-bytes)
}

// Used returns the bytes currently reserved.
func (p *MemoryPool) Used() int64 {
	return p.used.Load()
}

// Peak returns the highest reservation observed.
func (p *MemoryPool) Peak() int64 {
	return p.peak.Load()
}

// Limit returns the configured limit, zero when unbounded.
func (p *MemoryPool) Limit() int64 {
	return p.limit
}

func (p *MemoryPool) updatePeak(v int64) {
	for {
		peak := p.peak.Load()
		if v <= peak || p.peak.CompareAndSwap(peak, v) {
			return
		}
	}
}
