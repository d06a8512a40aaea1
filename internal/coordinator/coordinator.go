// Package coordinator owns the per-device edge lists of one process and
// drives them through ingest, finalize and the collective shuffle.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jittakal/edgeshuffle/internal/edgelist"
	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/internal/validator"
	"github.com/jittakal/edgeshuffle/pkg/device"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/source"
)

// MetricsCollector defines metrics operations for the coordinator and the
// edge lists it owns.
type MetricsCollector interface {
	edgelist.MetricsCollector
	IncBatchesIngested(source string, status string)
	ObserveBuildDuration(duration float64)
}

// Config contains graph construction settings shared by every device.
type Config struct {
	ChunkCapacity int
	Attributes    edge.Attributes
	// Transposed partitions edges by destination instead of source.
	Transposed bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDLQ routes rejected batches to publisher before they are committed.
func WithDLQ(publisher source.DLQPublisher) Option {
	return func(c *Coordinator) {
		c.dlq = publisher
	}
}

// Coordinator manages one edge list per device.
type Coordinator struct {
	config    Config
	handles   []device.Handle
	lists     []*edgelist.EdgeList
	validator *validator.BatchValidator
	dlq       source.DLQPublisher
	logger    *slog.Logger
	metrics   MetricsCollector

	mu         sync.RWMutex
	phase      edge.Phase
	building   bool
	fatal      error
	partitions []edge.Partition
}

// New creates an edge list on every handle.
func New(
	handles []device.Handle,
	config Config,
	logger *slog.Logger,
	metrics MetricsCollector,
	opts ...Option,
) (*Coordinator, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("at least one device handle is required")
	}

	c := &Coordinator{
		config:    config,
		handles:   handles,
		lists:     make([]*edgelist.EdgeList, len(handles)),
		validator: validator.NewBatchValidator(config.Attributes),
		logger:    logger,
		metrics:   metrics,
		phase:     edge.PhaseFilling,
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, h := range handles {
		if h.Rank() != i {
			c.release(i)
			return nil, fmt.Errorf("%w: handle %d reports rank %d", errors.ErrRankMismatch, i, h.Rank())
		}

		l, err := edgelist.New(h, edgelist.Config{
			ChunkCapacity: config.ChunkCapacity,
			Attributes:    config.Attributes,
		}, logger, metrics)
		if err != nil {
			c.release(i)
			return nil, fmt.Errorf("failed to create edge list on rank %d: %w", i, err)
		}
		c.lists[i] = l
	}

	logger.Info("coordinator created",
		"devices", len(handles),
		"chunk_capacity", config.ChunkCapacity,
		"attributes", config.Attributes.String(),
		"transposed", config.Transposed,
		"dlq_enabled", c.dlq != nil,
	)

	return c, nil
}

// EdgeList returns the edge list of device rank.
func (c *Coordinator) EdgeList(rank int) (*edgelist.EdgeList, error) {
	if rank < 0 || rank >= len(c.lists) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", errors.ErrRankMismatch, rank, len(c.lists))
	}
	return c.lists[rank], nil
}

// Devices returns the number of devices.
func (c *Coordinator) Devices() int {
	return len(c.lists)
}

// Ingest appends batches until the channel closes, using workers goroutines.
// Worker w appends to device w mod Devices(). Invalid batches are published to
// the DLQ, when configured, and committed without being appended.
// Ingest returns once every worker stopped, so no append is in flight
// afterwards.
func (c *Coordinator) Ingest(ctx context.Context, batches <-chan *edge.ConsumedBatch, workers int) error {
	c.mu.RLock()
	built := c.building || c.phase != edge.PhaseFilling
	c.mu.RUnlock()
	if built {
		return errors.ErrAlreadyBuilt
	}

	if workers < 1 {
		workers = len(c.lists)
	}

	c.logger.Info("starting ingest", "workers", workers, "devices", len(c.lists))
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		list := c.lists[w%len(c.lists)]
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case batch, ok := <-batches:
					if !ok {
						return nil
					}
					if err := c.ingest(gctx, list, batch); err != nil {
						return err
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Error("ingest stopped", "error", err)
		return err
	}

	c.logger.Info("ingest complete",
		"edges", c.totalEdges(),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
	return nil
}

func (c *Coordinator) ingest(ctx context.Context, list *edgelist.EdgeList, batch *edge.ConsumedBatch) error {
	sourceName := batch.Metadata.Source

	if err := c.validator.Validate(batch); err != nil {
		c.metrics.IncBatchesIngested(sourceName, "rejected")
		c.logger.Warn("rejecting edge batch",
			"batch_id", validator.BatchID(batch.Metadata),
			"error", err,
		)

		if c.dlq != nil {
			if dlqErr := c.dlq.Publish(ctx, batch, err.Error()); dlqErr != nil {
				return fmt.Errorf("failed to publish rejected batch to DLQ: %w", dlqErr)
			}
		}
		c.commit(batch)
		return nil
	}

	if err := list.Append(ctx, batch.Columns); err != nil {
		c.setFatal(err)
		return err
	}

	c.metrics.IncBatchesIngested(sourceName, "appended")
	c.commit(batch)
	return nil
}

func (c *Coordinator) commit(batch *edge.ConsumedBatch) {
	if batch.CommitFunc == nil {
		return
	}
	if err := batch.CommitFunc(); err != nil {
		c.logger.Warn("failed to commit edge batch",
			"batch_id", validator.BatchID(batch.Metadata),
			"error", err,
		)
	}
}

// Build finalizes every edge list, then consolidates and shuffles all of them
// together and returns the partition owned by each device, indexed by rank.
// Build must be called once, after Ingest returned.
func (c *Coordinator) Build(ctx context.Context) ([]edge.Partition, error) {
	c.mu.Lock()
	if c.building || c.phase != edge.PhaseFilling {
		c.mu.Unlock()
		return nil, errors.ErrAlreadyBuilt
	}
	c.building = true
	c.mu.Unlock()

	startTime := time.Now()

	for _, l := range c.lists {
		if err := l.Finalize(); err != nil {
			c.setFatal(err)
			return nil, err
		}
	}
	c.setPhase(edge.PhaseFinalized)

	c.logger.Info("edge lists finalized, starting shuffle",
		"edges", c.totalEdges(),
		"transposed", c.config.Transposed,
	)

	// Every device joins the collective; a failure on one cancels the rest.
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range c.lists {
		g.Go(func() error {
			return l.ConsolidateAndShuffle(gctx, c.config.Transposed)
		})
	}
	if err := g.Wait(); err != nil {
		c.setFatal(err)
		c.logger.Error("shuffle failed", "error", err)
		return nil, err
	}

	partitions := make([]edge.Partition, len(c.lists))
	for rank, l := range c.lists {
		partitions[rank] = l.Partition()
	}

	c.mu.Lock()
	c.partitions = partitions
	c.phase = edge.PhaseShuffled
	c.mu.Unlock()

	duration := time.Since(startTime)
	c.metrics.ObserveBuildDuration(duration.Seconds())
	c.logger.Info("edge lists built",
		"devices", len(partitions),
		"edges", c.totalEdges(),
		"duration_ms", duration.Milliseconds(),
	)

	return partitions, nil
}

// Partitions returns the partitions produced by Build, or nil before it.
func (c *Coordinator) Partitions() []edge.Partition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.partitions
}

// Phase returns the lifecycle phase shared by all edge lists.
func (c *Coordinator) Phase() edge.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Stats returns the chunk layout of every edge list, indexed by rank.
func (c *Coordinator) Stats() []edge.Stats {
	stats := make([]edge.Stats, len(c.lists))
	for rank, l := range c.lists {
		stats[rank] = l.Stats()
	}
	return stats
}

// Err returns the fatal error that made the edge lists unusable, if any.
func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fatal
}

// Release frees the device memory of every edge list.
func (c *Coordinator) Release() {
	c.release(len(c.lists))
}

func (c *Coordinator) release(n int) {
	for _, l := range c.lists[:n] {
		if l != nil {
			l.Release()
		}
	}
}

func (c *Coordinator) totalEdges() int {
	total := 0
	for _, l := range c.lists {
		total += l.Stats().Edges
	}
	return total
}

func (c *Coordinator) setPhase(phase edge.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
}

func (c *Coordinator) setFatal(err error) {
	if !errors.IsFatal(err) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}
