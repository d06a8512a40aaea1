package encoder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/encoder"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for the Avro OCF (Object Container
// File) format. Blocks are optionally compressed with deflate or snappy.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	name, err := avroCompression(compression)
	if err != nil {
		return nil, err
	}

	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: name,
	}, nil
}

// avroSchema returns the Avro schema of one edge.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "Edge",
		"namespace": "io.edgeshuffle",
		"fields": [
			{"name": "src", "type": "long"},
			{"name": "dst", "type": "long"},
			{"name": "weight", "type": ["null", "float"], "default": null},
			{"name": "edge_id", "type": ["null", "long"], "default": null},
			{"name": "edge_type", "type": ["null", "int"], "default": null}
		]
	}`
}

func avroCompression(compression string) (string, error) {
	switch compression {
	case "", "none", "NONE", "uncompressed", "UNCOMPRESSED":
		return goavro.CompressionNullLabel, nil
	case "deflate", "DEFLATE", "gzip", "GZIP":
		return goavro.CompressionDeflateLabel, nil
	case "snappy", "SNAPPY":
		return goavro.CompressionSnappyLabel, nil
	default:
		return "", fmt.Errorf("unsupported avro compression: %s", compression)
	}
}

// Encode writes the partition to an Avro file.
func (e *AvroEncoder) Encode(filePath string, part edge.Partition) (*edge.FileStats, error) {
	if part.Columns.Len() == 0 {
		return nil, fmt.Errorf("no edges to encode for rank %d", part.Rank)
	}

	first := time.Now()

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := e.write(file, part.Columns); err != nil {
		return nil, err
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

// EncodeToBytes encodes the columns to an in-memory OCF.
func (e *AvroEncoder) EncodeToBytes(cols edge.Columns) ([]byte, error) {
	if cols.Len() == 0 {
		return nil, fmt.Errorf("no edges to encode")
	}

	var buf bytes.Buffer
	if err := e.write(&buf, cols); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) write(w io.Writer, cols edge.Columns) error {
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           e.codec,
		CompressionName: e.compression,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	records := make([]interface{}, cols.Len())
	for i := range records {
		records[i] = toAvroMap(cols, i)
	}

	if err := ocfWriter.Append(records); err != nil {
		return fmt.Errorf("failed to write edges: %w", err)
	}
	return nil
}

// toAvroMap converts row i to its Avro map representation.
func toAvroMap(cols edge.Columns, i int) map[string]interface{} {
	avroMap := map[string]interface{}{
		"src":       int64(cols.Src[i]),
		"dst":       int64(cols.Dst[i]),
		"weight":    nil,
		"edge_id":   nil,
		"edge_type": nil,
	}

	if cols.Weights != nil {
		avroMap["weight"] = goavro.Union("float", float32(cols.Weights[i]))
	}
	if cols.EdgeIDs != nil {
		avroMap["edge_id"] = goavro.Union("long", int64(cols.EdgeIDs[i]))
	}
	if cols.EdgeTypes != nil {
		avroMap["edge_type"] = goavro.Union("int", int32(cols.EdgeTypes[i]))
	}

	return avroMap
}

// Format returns the file format.
func (e *AvroEncoder) Format() edge.FileFormat {
	return edge.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	return ".avro"
}
