// Package storage defines interfaces for exporting edge partitions.
//
// This package provides abstractions for writing finalized device partitions
// to various storage backends (S3, Azure Blob, GCS, local filesystem).
package storage

import (
	"context"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Writer writes edge partitions to storage.
type Writer interface {
	// Write writes the partition to storage at the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, part edge.Partition, path string, format edge.FileFormat) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths for exported partitions.
type Router interface {
	// Route returns the storage directory for a device partition of a graph.
	// transposed selects the layout whose major endpoint is the destination.
	Route(graph string, rank int, transposed bool) string
}
