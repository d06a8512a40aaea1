package encoder

import (
	"fmt"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/encoder"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      edge.FileFormat
	compression string
}

// NewFactory creates a new encoder factory.
// An empty compression selects the format's default.
func NewFactory(format edge.FileFormat, compression string) *Factory {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case edge.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case edge.FormatAvro:
		return NewAvroEncoder(f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []edge.FileFormat {
	return []edge.FileFormat{
		edge.FormatParquet,
		edge.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format edge.FileFormat) []string {
	switch format {
	case edge.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case edge.FormatAvro:
		return []string{"uncompressed", "deflate", "snappy"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format edge.FileFormat) string {
	switch format {
	case edge.FormatParquet:
		return "snappy"
	case edge.FormatAvro:
		return "deflate"
	default:
		return "uncompressed"
	}
}
