// Package shuffle defines the collective edge redistribution primitive.
//
// A shuffle is a fleet-wide collective: every device holding edges calls it
// together, contributes its local edges and receives exactly the edges the
// global partitioning assigns to it.
package shuffle

import (
	"context"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Shuffler redistributes edges across devices.
type Shuffler interface {
	// Shuffle contributes cols and returns the locally owned subset of all
	// contributed edges. The first endpoint column is the major key used for
	// partitioning. The result carries the same optional columns as cols.
	Shuffle(ctx context.Context, cols edge.Columns) (edge.Columns, error)
}
