// Package partition maps edges and vertices to device ranks.
//
// Edges are placed on a rows x cols grid of devices: the major endpoint picks
// the row and the minor endpoint picks the column. The grid is the most square
// factorization of the device count, so the edges of one major vertex spread
// over at most cols devices. Hashing uses 64-bit murmur3, which keeps the
// assignment identical on every device of the fleet.
package partition

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Grid is a 2D edge partitioning over Rows*Cols devices.
type Grid struct {
	Rows int
	Cols int
}

// NewGrid factors size into the most square grid with Rows <= Cols.
func NewGrid(size int) (Grid, error) {
	if size < 1 {
		return Grid{}, fmt.Errorf("device count must be positive, got %d", size)
	}

	rows := int(math.Sqrt(float64(size)))
	for size%rows != 0 {
		rows--
	}
	return Grid{Rows: rows, Cols: size / rows}, nil
}

// Size returns the number of devices in the grid.
func (g Grid) Size() int {
	return g.Rows * g.Cols
}

// EdgeRank returns the rank owning the edge (major, minor).
func (g Grid) EdgeRank(major, minor edge.VertexID) int {
	row := int(Hash(major) % uint64(g.Rows))
	col := int(Hash(minor) % uint64(g.Cols))
	return row*g.Cols + col
}

// VertexRank returns the rank owning vertex v.
func (g Grid) VertexRank(v edge.VertexID) int {
	return int(Hash(v) % uint64(g.Size()))
}

// Split groups the rows of cols by owning rank.
// The result has one entry per rank, each carrying the same optional columns
// as cols and preserving the relative order of rows.
func (g Grid) Split(cols edge.Columns) []edge.Columns {
	n := cols.Len()
	ranks := make([]int, n)
	counts := make([]int, g.Size())
	for i := 0; i < n; i++ {
		r := g.EdgeRank(cols.Src[i], cols.Dst[i])
		ranks[i] = r
		counts[r]++
	}

	attrs := cols.Attributes()
	out := make([]edge.Columns, g.Size())
	for r := range out {
		out[r] = edge.NewColumns(counts[r], attrs)
	}

	pos := make([]int, g.Size())
	for i := 0; i < n; i++ {
		r := ranks[i]
		j := pos[r]
		out[r].Src[j] = cols.Src[i]
		out[r].Dst[j] = cols.Dst[i]
		if attrs.Weight {
			out[r].Weights[j] = cols.Weights[i]
		}
		if attrs.EdgeID {
			out[r].EdgeIDs[j] = cols.EdgeIDs[i]
		}
		if attrs.EdgeType {
			out[r].EdgeTypes[j] = cols.EdgeTypes[i]
		}
		pos[r]++
	}
	return out
}

// Hash returns the 64-bit murmur3 hash of the little-endian vertex id.
func Hash(v edge.VertexID) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return murmur3.Sum64(buf[:])
}
