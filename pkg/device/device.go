// Package device defines the execution context a per-device edge list runs against.
//
// A Handle bundles a memory allocator, an execution stream used to transfer
// and drain copies, the device identity within the fleet and access to the
// collective shuffle primitive.
package device

import (
	"context"

	"github.com/jittakal/edgeshuffle/pkg/shuffle"
)

// Allocator accounts device memory.
// All implementations must be thread-safe.
type Allocator interface {
	// Reserve reserves bytes of device memory.
	// Returns an error if the reservation cannot be satisfied.
	Reserve(bytes int64) error

	// Release returns previously reserved bytes.
	Release(bytes int64)
}

// Stream is an ordered execution queue shared by all users of a device.
type Stream interface {
	// Enqueue schedules op after every previously enqueued op.
	Enqueue(op func())

	// Synchronize blocks until every op enqueued before the call has run.
	Synchronize(ctx context.Context) error
}

// Handle identifies a device and exposes its resources.
type Handle interface {
	// Rank returns the device rank within the fleet.
	Rank() int

	// Size returns the number of devices in the fleet.
	Size() int

	// Allocator returns the device memory allocator.
	Allocator() Allocator

	// Stream returns the device execution stream.
	Stream() Stream

	// Shuffler returns this device's view of the collective shuffle.
	Shuffler() shuffle.Shuffler
}
