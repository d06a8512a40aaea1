// Package encoder provides edge partition encoding to file formats.
//
// After the shuffle every device owns one partition. Encoders write it to a
// local file, which a storage writer then uploads.
//
// # Supported Formats
//
//   - Parquet: columnar, one row group per partition, compression snappy
//     (default), gzip, lz4, zstd or none
//   - Avro: OCF container with deflate (default), snappy or no block compression
//
// Both schemas have the columns src, dst, weight, edge_id and edge_type. The
// optional attribute columns are nullable and are NULL when the edge list was
// built without that attribute.
//
// # Usage
//
//	enc, err := encoder.NewFactory(edge.FormatParquet, "zstd").CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode("/tmp/rank=0.parquet", partition)
//
// Encoding an empty partition is an error; callers skip devices that own no edges.
//
// # Thread Safety
//
// Encoders hold no per-file state and are safe for concurrent use.
package encoder
