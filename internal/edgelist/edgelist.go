package edgelist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internaldevice "github.com/jittakal/edgeshuffle/internal/device"
	"github.com/jittakal/edgeshuffle/pkg/device"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// MetricsCollector defines metrics operations for the edge list.
type MetricsCollector interface {
	AddEdgesAppended(rank int, count int)
	IncChunksAllocated(rank int)
	ObserveAppendDuration(rank int, duration float64)
	ObserveConsolidateDuration(rank int, duration float64)
	ObserveShuffleDuration(rank int, duration float64)
	SetLocalEdges(rank int, count float64)
}

// Config contains edge list construction settings.
type Config struct {
	// ChunkCapacity is the maximum number of edges per chunk.
	ChunkCapacity int
	// Attributes selects the optional columns.
	Attributes edge.Attributes
}

// EdgeList buffers the edges of one device.
//
// Append may be called from any number of goroutines. Finalize,
// ConsolidateAndShuffle and the accessors must not run concurrently with
// Append or with each other; the owner quiesces appenders first.
type EdgeList struct {
	handle   device.Handle
	capacity int
	attrs    edge.Attributes

	src       *column[edge.VertexID]
	dst       *column[edge.VertexID]
	weights   *column[edge.Weight]
	edgeIDs   *column[edge.EdgeID]
	edgeTypes *column[edge.EdgeType]

	mu     sync.Mutex
	cursor int
	phase  edge.Phase

	logger  *slog.Logger
	metrics MetricsCollector
}

// New creates an edge list on handle and allocates the first chunk of every
// enabled attribute.
func New(handle device.Handle, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*EdgeList, error) {
	if cfg.ChunkCapacity < 1 {
		return nil, fmt.Errorf("chunk capacity must be positive, got %d", cfg.ChunkCapacity)
	}

	l := &EdgeList{
		handle:   handle,
		capacity: cfg.ChunkCapacity,
		attrs:    cfg.Attributes,
		src:      &column[edge.VertexID]{},
		dst:      &column[edge.VertexID]{},
		phase:    edge.PhaseFilling,
		logger:   logger.With("rank", handle.Rank()),
		metrics:  metrics,
	}
	if cfg.Attributes.Weight {
		l.weights = &column[edge.Weight]{}
	}
	if cfg.Attributes.EdgeID {
		l.edgeIDs = &column[edge.EdgeID]{}
	}
	if cfg.Attributes.EdgeType {
		l.edgeTypes = &column[edge.EdgeType]{}
	}

	if err := l.grow(); err != nil {
		return nil, fmt.Errorf("failed to allocate first chunk: %w", err)
	}

	l.logger.Info("edge list created",
		"chunk_capacity", l.capacity,
		"attributes", l.attrs.String(),
	)

	return l, nil
}

// columns returns the enabled attribute buffers, endpoints first.
func (l *EdgeList) columns() []chunked {
	cols := []chunked{l.src, l.dst}
	if l.weights != nil {
		cols = append(cols, l.weights)
	}
	if l.edgeIDs != nil {
		cols = append(cols, l.edgeIDs)
	}
	if l.edgeTypes != nil {
		cols = append(cols, l.edgeTypes)
	}
	return cols
}

// grow appends a chunk to every enabled attribute and resets the cursor.
// On failure the chunks added by this call are released so lockstep holds.
func (l *EdgeList) grow() error {
	cols := l.columns()
	for i, c := range cols {
		if err := c.grow(l.handle.Allocator(), l.capacity); err != nil {
			for _, added := range cols[:i] {
				added.dropLast()
			}
			return err
		}
	}
	l.cursor = 0

	l.metrics.IncChunksAllocated(l.handle.Rank())
	l.logger.Debug("chunk allocated", "chunks", len(l.src.chunks))
	return nil
}

// run is a reserved destination range of one batch.
type run struct {
	from      int
	src       []edge.VertexID
	dst       []edge.VertexID
	weights   []edge.Weight
	edgeIDs   []edge.EdgeID
	edgeTypes []edge.EdgeType
}

// reserve places n rows: it fills the room left in the last chunk, allocates
// a new chunk whenever the last one is full and rows remain, and returns the
// destination runs. Must be called with mu held.
func (l *EdgeList) reserve(n int) ([]run, error) {
	var runs []run
	for placed := 0; placed < n; {
		if l.cursor == l.capacity {
			if err := l.grow(); err != nil {
				return nil, err
			}
		}

		k := min(l.capacity-l.cursor, n-placed)
		r := run{
			from: placed,
			src:  l.src.slot(l.cursor, k),
			dst:  l.dst.slot(l.cursor, k),
		}
		if l.weights != nil {
			r.weights = l.weights.slot(l.cursor, k)
		}
		if l.edgeIDs != nil {
			r.edgeIDs = l.edgeIDs.slot(l.cursor, k)
		}
		if l.edgeTypes != nil {
			r.edgeTypes = l.edgeTypes.slot(l.cursor, k)
		}
		runs = append(runs, r)

		l.cursor += k
		placed += k
	}
	return runs, nil
}

// Append copies batch into the edge list.
//
// Slots are reserved under the lock; the copies are enqueued on the device
// stream outside of it, and Append returns once the stream has drained.
// Every column of batch must have the same length and an optional column
// must be present iff its attribute is enabled.
func (l *EdgeList) Append(ctx context.Context, batch edge.Columns) error {
	n := batch.Len()
	if n == 0 {
		return nil
	}
	startTime := time.Now()

	l.mu.Lock()
	runs, err := l.reserve(n)
	l.mu.Unlock()
	if err != nil {
		l.logger.Error("failed to reserve edge slots", "edges", n, "error", err)
		return fmt.Errorf("failed to reserve %d edge slots: %w", n, err)
	}

	stream := l.handle.Stream()
	for _, r := range runs {
		hi := r.from + len(r.src)
		internaldevice.CopyAsync(stream, r.src, batch.Src[r.from:hi])
		internaldevice.CopyAsync(stream, r.dst, batch.Dst[r.from:hi])
		if r.weights != nil {
			internaldevice.CopyAsync(stream, r.weights, batch.Weights[r.from:hi])
		}
		if r.edgeIDs != nil {
			internaldevice.CopyAsync(stream, r.edgeIDs, batch.EdgeIDs[r.from:hi])
		}
		if r.edgeTypes != nil {
			internaldevice.CopyAsync(stream, r.edgeTypes, batch.EdgeTypes[r.from:hi])
		}
	}

	if err := stream.Synchronize(ctx); err != nil {
		return fmt.Errorf("failed to drain device stream: %w", err)
	}

	rank := l.handle.Rank()
	l.metrics.AddEdgesAppended(rank, n)
	l.metrics.ObserveAppendDuration(rank, time.Since(startTime).Seconds())
	return nil
}

// Finalize trims the last chunk of every attribute to the cursor, ending the
// fill phase. It must be called exactly once, after every Append returned.
func (l *EdgeList) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.columns() {
		if err := c.trim(l.cursor); err != nil {
			return fmt.Errorf("failed to trim last chunk: %w", err)
		}
	}
	l.phase = edge.PhaseFinalized

	l.logger.Info("edge list finalized",
		"chunks", len(l.src.chunks),
		"edges", l.src.total(),
	)
	return nil
}

// ConsolidateAndShuffle merges every attribute into a single chunk, then
// hands the edges to the collective shuffle and installs the locally owned
// edges it returns. Every device of the fleet must call it together, exactly
// once, after Finalize.
//
// When transposed is set the destination column is passed to the shuffle as
// the major endpoint.
func (l *EdgeList) ConsolidateAndShuffle(ctx context.Context, transposed bool) error {
	if err := l.consolidate(ctx); err != nil {
		return fmt.Errorf("failed to consolidate edge list: %w", err)
	}
	if err := l.shuffle(ctx, transposed); err != nil {
		return fmt.Errorf("failed to shuffle edge list: %w", err)
	}
	return nil
}

func (l *EdgeList) consolidate(ctx context.Context) error {
	startTime := time.Now()
	chunks := len(l.src.chunks)
	if chunks < 2 {
		return nil
	}

	stream := l.handle.Stream()
	cols := l.columns()

	l.mu.Lock()
	for _, c := range cols {
		if err := c.merge(stream); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	l.mu.Unlock()

	if err := stream.Synchronize(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	for _, c := range cols {
		c.dropTail()
	}
	l.mu.Unlock()

	duration := time.Since(startTime)
	l.metrics.ObserveConsolidateDuration(l.handle.Rank(), duration.Seconds())
	l.logger.Info("edge list consolidated",
		"merged_chunks", chunks,
		"edges", l.src.total(),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

func (l *EdgeList) shuffle(ctx context.Context, transposed bool) error {
	startTime := time.Now()

	local := l.Columns()
	if transposed {
		local.Src, local.Dst = local.Dst, local.Src
	}
	sent := local.Len()

	owned, err := l.handle.Shuffler().Shuffle(ctx, local)
	if err != nil {
		l.logger.Error("collective shuffle failed", "error", err)
		return err
	}
	if transposed {
		owned.Src, owned.Dst = owned.Dst, owned.Src
	}

	l.mu.Lock()
	err = l.install(owned)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	rank := l.handle.Rank()
	duration := time.Since(startTime)
	l.metrics.ObserveShuffleDuration(rank, duration.Seconds())
	l.metrics.SetLocalEdges(rank, float64(owned.Len()))
	l.logger.Info("edge list shuffled",
		"transposed", transposed,
		"sent", sent,
		"owned", owned.Len(),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// install replaces every attribute with the matching column of owned.
// Must be called with mu held.
func (l *EdgeList) install(owned edge.Columns) error {
	alloc := l.handle.Allocator()
	if err := l.src.replace(alloc, owned.Src); err != nil {
		return err
	}
	if err := l.dst.replace(alloc, owned.Dst); err != nil {
		return err
	}
	if l.weights != nil {
		if err := l.weights.replace(alloc, owned.Weights); err != nil {
			return err
		}
	}
	if l.edgeIDs != nil {
		if err := l.edgeIDs.replace(alloc, owned.EdgeIDs); err != nil {
			return err
		}
	}
	if l.edgeTypes != nil {
		if err := l.edgeTypes.replace(alloc, owned.EdgeTypes); err != nil {
			return err
		}
	}

	l.cursor = owned.Len()
	l.phase = edge.PhaseShuffled
	return nil
}
