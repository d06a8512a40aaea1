// Package shuffle implements in-process collective edge redistribution.
package shuffle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/internal/partition"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/shuffle"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ shuffle.Shuffler = (*Member)(nil)
	_ shuffle.Shuffler = Identity{}
)

// Fleet connects the devices of one process for collective shuffles.
// Every member must call Shuffle for a round to complete.
type Fleet struct {
	grid    partition.Grid
	outbox  [][]edge.Columns
	barrier *barrier
	logger  *slog.Logger
}

// NewFleet creates a fleet of size members partitioned on a 2D grid.
func NewFleet(size int, logger *slog.Logger) (*Fleet, error) {
	grid, err := partition.NewGrid(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create partition grid: %w", err)
	}

	logger.Info("shuffle fleet created",
		"devices", size,
		"grid_rows", grid.Rows,
		"grid_cols", grid.Cols,
	)

	return &Fleet{
		grid:    grid,
		outbox:  make([][]edge.Columns, size),
		barrier: newBarrier(size),
		logger:  logger,
	}, nil
}

// Size returns the number of members.
func (f *Fleet) Size() int {
	return f.grid.Size()
}

// Grid returns the partitioning grid.
func (f *Fleet) Grid() partition.Grid {
	return f.grid
}

// Member returns the shuffler for device rank.
func (f *Fleet) Member(rank int) *Member {
	return &Member{fleet: f, rank: rank}
}

// Abort breaks the fleet; members waiting in or entering Shuffle fail with ErrFleetBroken.
func (f *Fleet) Abort(cause error) {
	f.logger.Error("aborting shuffle fleet", "error", cause)
	f.barrier.abort(cause)
}

// Member is one device's endpoint of the fleet.
type Member struct {
	fleet *Fleet
	rank  int
}

// Rank returns the member's rank.
func (m *Member) Rank() int {
	return m.rank
}

// Shuffle deposits cols split by owning rank, waits for all members, then
// gathers the rows addressed to this rank in source-rank order.
func (m *Member) Shuffle(ctx context.Context, cols edge.Columns) (edge.Columns, error) {
	f := m.fleet
	startTime := time.Now()

	f.outbox[m.rank] = f.grid.Split(cols)

	if err := f.barrier.Wait(ctx); err != nil {
		return edge.Columns{}, &errors.ShuffleError{Rank: m.rank, Stage: "exchange", Err: err}
	}

	total := 0
	for src := range f.outbox {
		total += f.outbox[src][m.rank].Len()
	}

	out := edge.NewColumns(total, cols.Attributes())
	offset := 0
	for src := range f.outbox {
		part := f.outbox[src][m.rank]
		copyRows(out, offset, part)
		offset += part.Len()
	}

	// Outboxes are rewritten by the next round only after everyone gathered.
	if err := f.barrier.Wait(ctx); err != nil {
		return edge.Columns{}, &errors.ShuffleError{Rank: m.rank, Stage: "gather", Err: err}
	}
	f.outbox[m.rank] = nil

	f.logger.Debug("shuffle round complete",
		"rank", m.rank,
		"sent", cols.Len(),
		"received", total,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return out, nil
}

func copyRows(dst edge.Columns, offset int, src edge.Columns) {
	copy(dst.Src[offset:], src.Src)
	copy(dst.Dst[offset:], src.Dst)
	if dst.Weights != nil {
		copy(dst.Weights[offset:], src.Weights)
	}
	if dst.EdgeIDs != nil {
		copy(dst.EdgeIDs[offset:], src.EdgeIDs)
	}
	if dst.EdgeTypes != nil {
		copy(dst.EdgeTypes[offset:], src.EdgeTypes)
	}
}

// Identity is the shuffle of a single-device fleet: every edge is local.
type Identity struct{}

// Shuffle returns cols unchanged.
func (Identity) Shuffle(_ context.Context, cols edge.Columns) (edge.Columns, error) {
	return cols, nil
}
