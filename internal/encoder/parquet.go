// Package encoder implements file format encoders for edge partitions.
package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/encoder"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// EdgeParquet is the Parquet row schema of one edge.
// Optional attributes are nullable so a file records which columns were present.
type EdgeParquet struct {
	Src      int64    `parquet:"src"`
	Dst      int64    `parquet:"dst"`
	Weight   *float32 `parquet:"weight,optional"`
	EdgeID   *int64   `parquet:"edge_id,optional"`
	EdgeType *int32   `parquet:"edge_type,optional"`
}

// ToParquetRows converts columns to Parquet rows.
func ToParquetRows(cols edge.Columns) []EdgeParquet {
	rows := make([]EdgeParquet, cols.Len())
	for i := range rows {
		rows[i] = EdgeParquet{
			Src: int64(cols.Src[i]),
			Dst: int64(cols.Dst[i]),
		}
		if cols.Weights != nil {
			w := float32(cols.Weights[i])
			rows[i].Weight = &w
		}
		if cols.EdgeIDs != nil {
			id := int64(cols.EdgeIDs[i])
			rows[i].EdgeID = &id
		}
		if cols.EdgeTypes != nil {
			et := int32(cols.EdgeTypes[i])
			rows[i].EdgeType = &et
		}
	}
	return rows
}

// FromParquetRows converts rows back to columns carrying attrs.
// It fails if a row lacks a value for a requested attribute.
func FromParquetRows(rows []EdgeParquet, attrs edge.Attributes) (edge.Columns, error) {
	cols := edge.NewColumns(len(rows), attrs)
	for i, row := range rows {
		cols.Src[i] = edge.VertexID(row.Src)
		cols.Dst[i] = edge.VertexID(row.Dst)
		if attrs.Weight {
			if row.Weight == nil {
				return edge.Columns{}, fmt.Errorf("row %d: missing weight", i)
			}
			cols.Weights[i] = edge.Weight(*row.Weight)
		}
		if attrs.EdgeID {
			if row.EdgeID == nil {
				return edge.Columns{}, fmt.Errorf("row %d: missing edge_id", i)
			}
			cols.EdgeIDs[i] = edge.EdgeID(*row.EdgeID)
		}
		if attrs.EdgeType {
			if row.EdgeType == nil {
				return edge.Columns{}, fmt.Errorf("row %d: missing edge_type", i)
			}
			cols.EdgeTypes[i] = edge.EdgeType(*row.EdgeType)
		}
	}
	return cols, nil
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// Supports SNAPPY (default), GZIP, LZ4, ZSTD and uncompressed pages.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes the partition to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, part edge.Partition) (*edge.FileStats, error) {
	if part.Columns.Len() == 0 {
		return nil, fmt.Errorf("no edges to encode for rank %d", part.Rank)
	}

	first := time.Now()

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer := parquet.NewGenericWriter[EdgeParquet](
		file,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("edgeshuffle", "1.0", "0"),
		parquet.KeyValueMetadata("rank", fmt.Sprintf("%d", part.Rank)),
		parquet.KeyValueMetadata("attributes", part.Columns.Attributes().String()),
	)

	if _, err := writer.Write(ToParquetRows(part.Columns)); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write edges: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &edge.FileStats{
		RecordCount:    part.Columns.Len(),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: first,
		LastWriteTime:  time.Now(),
	}, nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() edge.FileFormat {
	return edge.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
