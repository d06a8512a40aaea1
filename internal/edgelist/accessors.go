package edgelist

import (
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Src returns the chunks of the source endpoint column.
func (l *EdgeList) Src() [][]edge.VertexID {
	return l.src.views()
}

// Dst returns the chunks of the destination endpoint column.
func (l *EdgeList) Dst() [][]edge.VertexID {
	return l.dst.views()
}

// Weights returns the chunks of the weight column, nil when weights are disabled.
func (l *EdgeList) Weights() [][]edge.Weight {
	if l.weights == nil {
		return nil
	}
	return l.weights.views()
}

// EdgeIDs returns the chunks of the edge id column, nil when disabled.
func (l *EdgeList) EdgeIDs() [][]edge.EdgeID {
	if l.edgeIDs == nil {
		return nil
	}
	return l.edgeIDs.views()
}

// EdgeTypes returns the chunks of the edge type column, nil when disabled.
func (l *EdgeList) EdgeTypes() [][]edge.EdgeType {
	if l.edgeTypes == nil {
		return nil
	}
	return l.edgeTypes.views()
}

// Columns returns the edges as contiguous columns. After consolidation the
// columns alias device memory; before it they are host copies.
func (l *EdgeList) Columns() edge.Columns {
	cols := edge.Columns{
		Src: l.src.contiguous(),
		Dst: l.dst.contiguous(),
	}
	if l.weights != nil {
		cols.Weights = l.weights.contiguous()
	}
	if l.edgeIDs != nil {
		cols.EdgeIDs = l.edgeIDs.contiguous()
	}
	if l.edgeTypes != nil {
		cols.EdgeTypes = l.edgeTypes.contiguous()
	}
	return cols
}

// Partition returns the edges held by this device.
func (l *EdgeList) Partition() edge.Partition {
	return edge.Partition{Rank: l.handle.Rank(), Columns: l.Columns()}
}

// Attributes returns the enabled optional columns.
func (l *EdgeList) Attributes() edge.Attributes {
	return l.attrs
}

// ChunkCapacity returns the fixed chunk capacity.
func (l *EdgeList) ChunkCapacity() int {
	return l.capacity
}

// Stats returns the current chunk layout. It is safe to call during the fill phase.
func (l *EdgeList) Stats() edge.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	chunks := len(l.src.chunks)
	edges := l.src.total()
	if l.phase == edge.PhaseFilling && chunks > 0 {
		edges = (chunks-1)*l.capacity + l.cursor
	}

	return edge.Stats{
		Rank:   l.handle.Rank(),
		Chunks: chunks,
		Edges:  edges,
		Cursor: l.cursor,
		Phase:  l.phase,
	}
}

// Release frees the device memory of every attribute.
func (l *EdgeList) Release() {
	for _, c := range l.columns() {
		c.release()
	}
}
