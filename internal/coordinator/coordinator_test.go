package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	internaldevice "github.com/jittakal/edgeshuffle/internal/device"
	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/internal/shuffle"
	"github.com/jittakal/edgeshuffle/pkg/device"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

type mockMetrics struct {
	mu       sync.Mutex
	batches  map[string]int
	appended int
	builds   int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{batches: make(map[string]int)}
}

func (m *mockMetrics) AddEdgesAppended(rank int, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended += count
}
func (m *mockMetrics) IncChunksAllocated(rank int)                           {}
func (m *mockMetrics) ObserveAppendDuration(rank int, duration float64)      {}
func (m *mockMetrics) ObserveConsolidateDuration(rank int, duration float64) {}
func (m *mockMetrics) ObserveShuffleDuration(rank int, duration float64)     {}
func (m *mockMetrics) SetLocalEdges(rank int, count float64)                 {}
func (m *mockMetrics) IncBatchesIngested(source string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[status]++
}
func (m *mockMetrics) ObserveBuildDuration(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds++
}

type mockDLQ struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (d *mockDLQ) Publish(_ context.Context, batch *edge.ConsumedBatch, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.published = append(d.published, batch.Metadata.EventID)
	return nil
}

func (d *mockDLQ) Close() error { return nil }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFleetHandles(t *testing.T, n int, limit int64) []device.Handle {
	t.Helper()
	fleet, err := shuffle.NewFleet(n, newTestLogger())
	if err != nil {
		t.Fatalf("NewFleet() error = %v", err)
	}
	hs, err := internaldevice.NewFleet(n, internaldevice.Config{MemoryLimitBytes: limit, StreamDepth: 8}, fleet)
	if err != nil {
		t.Fatalf("device.NewFleet() error = %v", err)
	}
	t.Cleanup(func() {
		for _, h := range hs {
			h.Close()
		}
	})
	return internaldevice.Handles(hs)
}

func makeBatch(id, n int, attrs edge.Attributes, commits *atomic.Int64) *edge.ConsumedBatch {
	cols := edge.NewColumns(n, attrs)
	for i := 0; i < n; i++ {
		cols.Src[i] = edge.VertexID(id*100 + i)
		cols.Dst[i] = edge.VertexID(id*100 + (i+1)%n)
		if attrs.Weight {
			cols.Weights[i] = edge.Weight(float32(i) + 0.5)
		}
	}
	return &edge.ConsumedBatch{
		Columns:  cols,
		Metadata: edge.SourceMetadata{Source: "test", EventID: fmt.Sprintf("batch-%d", id)},
		CommitFunc: func() error {
			commits.Add(1)
			return nil
		},
	}
}

func feed(batches []*edge.ConsumedBatch) <-chan *edge.ConsumedBatch {
	ch := make(chan *edge.ConsumedBatch, len(batches))
	for _, b := range batches {
		ch <- b
	}
	close(ch)
	return ch
}

func TestNew(t *testing.T) {
	t.Run("no handles", func(t *testing.T) {
		if _, err := New(nil, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics()); err == nil {
			t.Error("New() with no handles should fail")
		}
	})

	t.Run("rank mismatch", func(t *testing.T) {
		hs := newFleetHandles(t, 2, 0)
		hs[0], hs[1] = hs[1], hs[0]
		_, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics())
		if !stderrors.Is(err, errors.ErrRankMismatch) {
			t.Errorf("New() error = %v, want ErrRankMismatch", err)
		}
	})

	t.Run("invalid capacity", func(t *testing.T) {
		hs := newFleetHandles(t, 1, 0)
		if _, err := New(hs, Config{ChunkCapacity: 0}, newTestLogger(), newMockMetrics()); err == nil {
			t.Error("New() with zero capacity should fail")
		}
	})

	t.Run("valid", func(t *testing.T) {
		hs := newFleetHandles(t, 3, 0)
		c, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if c.Devices() != 3 {
			t.Errorf("Devices() = %d, want 3", c.Devices())
		}
		if c.Phase() != edge.PhaseFilling {
			t.Errorf("Phase() = %s, want filling", c.Phase())
		}
		if _, err := c.EdgeList(3); !stderrors.Is(err, errors.ErrRankMismatch) {
			t.Errorf("EdgeList(3) error = %v, want ErrRankMismatch", err)
		}
		if l, err := c.EdgeList(2); err != nil || l == nil {
			t.Errorf("EdgeList(2) = %v, %v", l, err)
		}
	})
}

func TestCoordinator_IngestAndBuild(t *testing.T) {
	attrs := edge.Attributes{Weight: true}
	hs := newFleetHandles(t, 4, 0)
	metrics := newMockMetrics()
	dlq := &mockDLQ{}

	c, err := New(hs, Config{ChunkCapacity: 16, Attributes: attrs}, newTestLogger(), metrics, WithDLQ(dlq))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Release()

	var commits atomic.Int64
	var batches []*edge.ConsumedBatch
	want := make(map[string]int)
	for i := 0; i < 40; i++ {
		b := makeBatch(i, 5+i%7, attrs, &commits)
		if i%10 == 9 {
			// Missing weights: rejected.
			b.Columns.Weights = nil
		} else {
			for r := 0; r < b.Columns.Len(); r++ {
				want[b.Columns.Row(r).Key()]++
			}
		}
		batches = append(batches, b)
	}

	if err := c.Ingest(context.Background(), feed(batches), 6); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got := commits.Load(); got != 40 {
		t.Errorf("commits = %d, want 40", got)
	}
	if len(dlq.published) != 4 {
		t.Errorf("DLQ published %d batches, want 4", len(dlq.published))
	}
	if metrics.batches["rejected"] != 4 || metrics.batches["appended"] != 36 {
		t.Errorf("batch metrics = %v", metrics.batches)
	}

	if c.Readiness(context.Background()) {
		t.Error("should not be ready before Build")
	}

	partitions, err := c.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(partitions) != 4 {
		t.Fatalf("Build() returned %d partitions, want 4", len(partitions))
	}

	got := make(map[string]int)
	for rank, p := range partitions {
		if p.Rank != rank {
			t.Errorf("partition %d has rank %d", rank, p.Rank)
		}
		for i := 0; i < p.Columns.Len(); i++ {
			got[p.Columns.Row(i).Key()]++
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d distinct edges, want %d", len(got), len(want))
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("edge %s count = %d, want %d", k, got[k], n)
		}
	}

	if c.Phase() != edge.PhaseShuffled {
		t.Errorf("Phase() = %s, want shuffled", c.Phase())
	}
	if !c.Readiness(context.Background()) || !c.Liveness() || !c.IsHealthy() {
		t.Error("coordinator should be live, healthy and ready after Build")
	}
	if metrics.builds != 1 {
		t.Errorf("builds = %d, want 1", metrics.builds)
	}
	if len(c.Partitions()) != 4 {
		t.Errorf("Partitions() = %d entries, want 4", len(c.Partitions()))
	}
	for _, s := range c.Stats() {
		if s.Chunks != 1 || s.Phase != edge.PhaseShuffled {
			t.Errorf("Stats() = %+v", s)
		}
	}
}

func TestCoordinator_AlreadyBuilt(t *testing.T) {
	hs := newFleetHandles(t, 2, 0)
	c, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := c.Build(context.Background()); !stderrors.Is(err, errors.ErrAlreadyBuilt) {
		t.Errorf("second Build() error = %v, want ErrAlreadyBuilt", err)
	}
	if err := c.Ingest(context.Background(), feed(nil), 1); !stderrors.Is(err, errors.ErrAlreadyBuilt) {
		t.Errorf("Ingest() after Build error = %v, want ErrAlreadyBuilt", err)
	}
}

func TestCoordinator_IngestCancelled(t *testing.T) {
	hs := newFleetHandles(t, 1, 0)
	c, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The channel never closes; only cancellation stops the workers.
	never := make(chan *edge.ConsumedBatch)
	if err := c.Ingest(ctx, never, 2); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Ingest() error = %v, want context.Canceled", err)
	}
	if !c.Liveness() {
		t.Error("cancellation should not be fatal")
	}
}

func TestCoordinator_DLQFailure(t *testing.T) {
	hs := newFleetHandles(t, 1, 0)
	dlqErr := stderrors.New("broker down")
	c, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics(), WithDLQ(&mockDLQ{err: dlqErr}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var commits atomic.Int64
	bad := makeBatch(1, 3, edge.Attributes{}, &commits)
	bad.Columns.Dst = bad.Columns.Dst[:2]

	err = c.Ingest(context.Background(), feed([]*edge.ConsumedBatch{bad}), 1)
	if !stderrors.Is(err, dlqErr) {
		t.Errorf("Ingest() error = %v, want %v", err, dlqErr)
	}
	if commits.Load() != 0 {
		t.Error("batch should not be committed when the DLQ publish fails")
	}
}

func TestCoordinator_OutOfMemory(t *testing.T) {
	// Room for the first chunk of 4 edges (64 bytes) and nothing more.
	hs := newFleetHandles(t, 1, 100)
	c, err := New(hs, Config{ChunkCapacity: 4}, newTestLogger(), newMockMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var commits atomic.Int64
	err = c.Ingest(context.Background(), feed([]*edge.ConsumedBatch{makeBatch(1, 9, edge.Attributes{}, &commits)}), 1)
	if !stderrors.Is(err, errors.ErrOutOfMemory) {
		t.Fatalf("Ingest() error = %v, want ErrOutOfMemory", err)
	}

	if c.Liveness() || c.IsHealthy() {
		t.Error("coordinator should not be live after an allocation failure")
	}
	if c.GetStatus()["error"] == "" {
		t.Error("GetStatus() should report the fatal error")
	}
}

func TestCoordinator_GetStatus(t *testing.T) {
	hs := newFleetHandles(t, 2, 0)
	c, err := New(hs, Config{ChunkCapacity: 8}, newTestLogger(), newMockMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var commits atomic.Int64
	if err := c.Ingest(context.Background(), feed([]*edge.ConsumedBatch{makeBatch(0, 3, edge.Attributes{}, &commits)}), 1); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	status := c.GetStatus()
	if status["phase"] != "filling" {
		t.Errorf("phase = %s, want filling", status["phase"])
	}
	if status["devices"] != "2" {
		t.Errorf("devices = %s, want 2", status["devices"])
	}
	if status["rank_0"] != "chunks=1 edges=3" {
		t.Errorf("rank_0 = %s", status["rank_0"])
	}
	if status["rank_1"] != "chunks=1 edges=0" {
		t.Errorf("rank_1 = %s", status["rank_1"])
	}
}
