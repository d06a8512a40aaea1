// Package edge defines the core edge types shared by buffering, shuffling and export.
//
// Edges are stored column-wise: two endpoint columns that are always present
// plus optional weight, edge id and edge type columns. An optional column is
// present iff it is non-nil.
package edge

import (
	"fmt"
	"time"
)

// VertexID identifies a vertex.
type VertexID int64

// Weight is an edge weight.
type Weight float32

// EdgeID identifies an edge.
type EdgeID int64

// EdgeType is an edge type label.
type EdgeType int32

// Attributes records which optional columns an edge set carries.
type Attributes struct {
	Weight   bool
	EdgeID   bool
	EdgeType bool
}

// String returns a compact representation such as "src,dst,wgt,type".
func (a Attributes) String() string {
	s := "src,dst"
	if a.Weight {
		s += ",wgt"
	}
	if a.EdgeID {
		s += ",id"
	}
	if a.EdgeType {
		s += ",type"
	}
	return s
}

// Columns holds parallel edge columns.
// Src and Dst are always present; an optional column is present iff non-nil.
type Columns struct {
	Src       []VertexID `json:"src"`
	Dst       []VertexID `json:"dst"`
	Weights   []Weight   `json:"weights,omitempty"`
	EdgeIDs   []EdgeID   `json:"edge_ids,omitempty"`
	EdgeTypes []EdgeType `json:"edge_types,omitempty"`
}

// NewColumns allocates columns of length n for the given attributes.
// Present columns are non-nil even when n is zero.
func NewColumns(n int, attrs Attributes) Columns {
	c := Columns{
		Src: make([]VertexID, n),
		Dst: make([]VertexID, n),
	}
	if attrs.Weight {
		c.Weights = make([]Weight, n)
	}
	if attrs.EdgeID {
		c.EdgeIDs = make([]EdgeID, n)
	}
	if attrs.EdgeType {
		c.EdgeTypes = make([]EdgeType, n)
	}
	return c
}

// Len returns the number of rows.
func (c Columns) Len() int {
	return len(c.Src)
}

// Attributes reports which optional columns are present.
func (c Columns) Attributes() Attributes {
	return Attributes{
		Weight:   c.Weights != nil,
		EdgeID:   c.EdgeIDs != nil,
		EdgeType: c.EdgeTypes != nil,
	}
}

// Row returns row i as a tuple.
func (c Columns) Row(i int) Tuple {
	t := Tuple{Src: c.Src[i], Dst: c.Dst[i]}
	if c.Weights != nil {
		w := c.Weights[i]
		t.Weight = &w
	}
	if c.EdgeIDs != nil {
		id := c.EdgeIDs[i]
		t.EdgeID = &id
	}
	if c.EdgeTypes != nil {
		et := c.EdgeTypes[i]
		t.EdgeType = &et
	}
	return t
}

// Slice returns the rows [lo, hi) sharing the underlying arrays.
func (c Columns) Slice(lo, hi int) Columns {
	s := Columns{Src: c.Src[lo:hi], Dst: c.Dst[lo:hi]}
	if c.Weights != nil {
		s.Weights = c.Weights[lo:hi]
	}
	if c.EdgeIDs != nil {
		s.EdgeIDs = c.EdgeIDs[lo:hi]
	}
	if c.EdgeTypes != nil {
		s.EdgeTypes = c.EdgeTypes[lo:hi]
	}
	return s
}

// Append appends the rows of other, which must carry the same attributes.
func (c *Columns) Append(other Columns) {
	c.Src = append(c.Src, other.Src...)
	c.Dst = append(c.Dst, other.Dst...)
	if c.Weights != nil {
		c.Weights = append(c.Weights, other.Weights...)
	}
	if c.EdgeIDs != nil {
		c.EdgeIDs = append(c.EdgeIDs, other.EdgeIDs...)
	}
	if c.EdgeTypes != nil {
		c.EdgeTypes = append(c.EdgeTypes, other.EdgeTypes...)
	}
}

// Tuple is one edge row. Optional fields are nil when the attribute is absent.
type Tuple struct {
	Src      VertexID
	Dst      VertexID
	Weight   *Weight
	EdgeID   *EdgeID
	EdgeType *EdgeType
}

// Key returns a comparable representation of the tuple, suitable for multiset comparison.
func (t Tuple) Key() string {
	k := fmt.Sprintf("%d>%d", t.Src, t.Dst)
	if t.Weight != nil {
		k += fmt.Sprintf("|w=%g", *t.Weight)
	}
	if t.EdgeID != nil {
		k += fmt.Sprintf("|id=%d", *t.EdgeID)
	}
	if t.EdgeType != nil {
		k += fmt.Sprintf("|t=%d", *t.EdgeType)
	}
	return k
}

// Partition is the finalized, locally owned edge set of one device.
type Partition struct {
	Rank    int
	Columns Columns
}

// Phase is the lifecycle phase of a per-device edge list.
type Phase string

const (
	PhaseFilling   Phase = "filling"
	PhaseFinalized Phase = "finalized"
	PhaseShuffled  Phase = "shuffled"
)

// Stats describes the chunk layout of a per-device edge list.
type Stats struct {
	Rank   int
	Chunks int
	Edges  int
	Cursor int
	Phase  Phase
}

// SourceMetadata describes where an ingested batch came from.
type SourceMetadata struct {
	Source    string
	Topic     string
	Partition int32
	Offset    int64
	EventID   string
	Timestamp time.Time
}

// ConsumedBatch is an edge batch read from an ingest source.
type ConsumedBatch struct {
	Columns    Columns
	Metadata   SourceMetadata
	CommitFunc func() error
}

// FileFormat represents the export file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// FileStats contains statistics about an exported partition file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}
