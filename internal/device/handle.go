package device

import (
	"fmt"

	"github.com/jittakal/edgeshuffle/internal/shuffle"
	"github.com/jittakal/edgeshuffle/pkg/device"
	pkgshuffle "github.com/jittakal/edgeshuffle/pkg/shuffle"
)

// Ensure implementation satisfies interface at compile time.
var _ device.Handle = (*Handle)(nil)

// Config contains per-device resource settings.
type Config struct {
	MemoryLimitBytes int64
	StreamDepth      int
}

// Handle bundles the resources of one device.
type Handle struct {
	rank     int
	size     int
	pool     *MemoryPool
	stream   *Stream
	shuffler pkgshuffle.Shuffler
}

// NewHandle creates a handle for device rank of a fleet of size devices.
func NewHandle(rank, size int, cfg Config, shuffler pkgshuffle.Shuffler) *Handle {
	return &Handle{
		rank:     rank,
		size:     size,
		pool:     NewMemoryPool(rank, cfg.MemoryLimitBytes),
		stream:   NewStream(cfg.StreamDepth),
		shuffler: shuffler,
	}
}

// NewSingle creates a one-device handle whose shuffle returns its input unchanged.
func NewSingle(cfg Config) *Handle {
	return NewHandle(0, 1, cfg, shuffle.Identity{})
}

// NewFleet creates size handles sharing one in-process shuffle fleet.
func NewFleet(size int, cfg Config, fleet *shuffle.Fleet) ([]*Handle, error) {
	if size < 1 {
		return nil, fmt.Errorf("fleet size must be positive, got %d", size)
	}
	if fleet.Size() != size {
		return nil, fmt.Errorf("fleet has %d members, want %d", fleet.Size(), size)
	}

	handles := make([]*Handle, size)
	for rank := range handles {
		handles[rank] = NewHandle(rank, size, cfg, fleet.Member(rank))
	}
	return handles, nil
}

// Rank returns the device rank.
func (h *Handle) Rank() int { return h.rank }

// Size returns the fleet size.
func (h *Handle) Size() int { return h.size }

// Allocator returns the device memory pool.
func (h *Handle) Allocator() device.Allocator { return h.pool }

// Stream returns the device stream.
func (h *Handle) Stream() device.Stream { return h.stream }

// Shuffler returns the collective shuffle member for this device.
func (h *Handle) Shuffler() pkgshuffle.Shuffler { return h.shuffler }

// Pool returns the concrete memory pool, for reporting.
func (h *Handle) Pool() *MemoryPool { return h.pool }

// Close stops the device stream.
func (h *Handle) Close() error {
	h.stream.Close()
	return nil
}

// Handles converts concrete handles to the interface slice taken by consumers.
func Handles(hs []*Handle) []device.Handle {
	out := make([]device.Handle, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}
