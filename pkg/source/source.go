// Package source defines interfaces for edge ingestion.
//
// This package provides abstractions for reading edge batches from external
// systems (Kafka topics, Parquet files) and for rejecting invalid batches.
package source

import (
	"context"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Source produces edge batches.
type Source interface {
	// Consume starts reading batches.
	// Returns channels for batches and errors. The batch channel is closed
	// once the source is exhausted or ctx is cancelled.
	Consume(ctx context.Context) (<-chan *edge.ConsumedBatch, <-chan error, error)

	// Close closes the source and releases resources.
	Close() error
}

// DLQPublisher publishes rejected batches to a dead letter queue.
type DLQPublisher interface {
	// Publish sends a batch to the DLQ with the rejection reason.
	Publish(ctx context.Context, batch *edge.ConsumedBatch, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
