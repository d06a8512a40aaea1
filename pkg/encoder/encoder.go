// Package encoder defines interfaces for encoding edge partitions to file formats.
package encoder

import "github.com/jittakal/edgeshuffle/pkg/edge"

// Encoder encodes a partition to a specific file format.
type Encoder interface {
	// Encode writes the partition to a file and returns file statistics.
	Encode(filePath string, part edge.Partition) (*edge.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() edge.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
