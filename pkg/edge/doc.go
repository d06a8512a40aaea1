// Package edge defines the column-oriented edge types used across the module.
//
// # Columns
//
// Columns keeps one slice per edge attribute. Src and Dst are always present;
// Weights, EdgeIDs and EdgeTypes are present iff non-nil:
//
//	cols := edge.NewColumns(3, edge.Attributes{Weight: true})
//	cols.Src[0], cols.Dst[0], cols.Weights[0] = 1, 4, 0.1
//
// Row i of every present column describes the same edge. Use Row to read one
// edge as a Tuple and Tuple.Key to compare edge multisets.
//
// # Partitions
//
// A Partition is the set of edges a device owns once the fill phase is
// finalized and the fleet-wide shuffle completed:
//
//	part := edge.Partition{Rank: 0, Columns: cols}
//
// # Ingest
//
// ConsumedBatch wraps a batch read from a source (Kafka, Parquet files) with
// its SourceMetadata and a CommitFunc acknowledging it.
package edge
