package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/storage"
)

// ExportConfig selects what an Exporter writes.
type ExportConfig struct {
	Graph      string
	Transposed bool
	Format     edge.FileFormat
}

// Exporter writes the partitions of every device through one writer.
type Exporter struct {
	writer storage.Writer
	router storage.Router
	config ExportConfig
	logger *slog.Logger
}

// NewExporter creates a new partition exporter.
func NewExporter(writer storage.Writer, router storage.Router, config ExportConfig, logger *slog.Logger) *Exporter {
	return &Exporter{
		writer: writer,
		router: router,
		config: config,
		logger: logger,
	}
}

// Export writes all partitions concurrently and returns the total bytes written.
// Empty partitions produce no file. The first write error cancels the rest.
func (e *Exporter) Export(ctx context.Context, parts []edge.Partition) (int64, error) {
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		g.Go(func() error {
			path := e.router.Route(e.config.Graph, part.Rank, e.config.Transposed)
			n, err := e.writer.Write(gctx, part, path, e.config.Format)
			if err != nil {
				return fmt.Errorf("export rank %d: %w", part.Rank, err)
			}
			total.Add(n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("export failed", "graph", e.config.Graph, "error", err)
		return total.Load(), err
	}

	e.logger.Info("exported partitions",
		"graph", e.config.Graph,
		"partitions", len(parts),
		"bytes", total.Load(),
		"format", e.config.Format,
	)
	return total.Load(), nil
}
