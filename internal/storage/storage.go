// Package storage implements storage writers for exported edge partitions.
//
// Every writer encodes a partition to a local file first and then moves or
// uploads it to its backend. Files are named after the device rank so
// re-exporting a graph overwrites the previous partition files.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/edgeshuffle/internal/encoder"
	apperrors "github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	pkgencoder "github.com/jittakal/edgeshuffle/pkg/encoder"
)

// Backend names used in logs, metrics and routes.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(rank int, format string, status string)
	ObserveFileSize(rank int, format string, size float64)
	ObserveStorageWriteDuration(backend string, format string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// PartFileName returns the file name of the partition of a rank.
func PartFileName(rank int, ext string) string {
	return fmt.Sprintf("part-%05d%s", rank, ext)
}

// objectKey strips "scheme://bucket/" from path and appends name.
func objectKey(path, scheme, name string) string {
	key := path
	if rest, ok := strings.CutPrefix(path, scheme+"://"); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			key = after
		} else {
			key = ""
		}
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return strings.TrimPrefix(key+name, "/")
}

// baseWriter holds what every backend shares: compression, logging, metrics
// and the closed state.
type baseWriter struct {
	backend     string
	compression string
	logger      *slog.Logger
	metrics     MetricsCollector
	mu          sync.RWMutex
	closed      bool
}

func newBaseWriter(backend, compression string, logger *slog.Logger, metrics MetricsCollector) *baseWriter {
	return &baseWriter{
		backend:     backend,
		compression: compression,
		logger:      logger.With("backend", backend),
		metrics:     metrics,
	}
}

// begin returns the encoder for one write, or nil when there is nothing to write.
// The caller must hold w.mu for reading.
func (w *baseWriter) begin(ctx context.Context, part edge.Partition, format edge.FileFormat) (pkgencoder.Encoder, error) {
	if w.closed {
		return nil, apperrors.ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if part.Columns.Len() == 0 {
		w.logger.Debug("skipping empty partition", "rank", part.Rank)
		return nil, nil
	}

	enc, err := encoder.NewFactory(format, w.compression).CreateEncoder()
	if err != nil {
		return nil, w.fail(part.Rank, format, "encoder_create", "", err)
	}
	return enc, nil
}

// stage encodes the partition to a temporary file and opens it for upload.
// The returned cleanup closes and removes the file.
func (w *baseWriter) stage(enc pkgencoder.Encoder, part edge.Partition) (*os.File, *edge.FileStats, func(), error) {
	tmp, err := os.CreateTemp("", fmt.Sprintf("%s-upload-*%s", w.backend, enc.FileExtension()))
	if err != nil {
		return nil, nil, nil, w.fail(part.Rank, enc.Format(), "temp_create", "", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	stats, err := enc.Encode(tmpPath, part)
	if err != nil {
		os.Remove(tmpPath)
		return nil, nil, nil, w.fail(part.Rank, enc.Format(), "encode", tmpPath, err)
	}

	file, err := os.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, nil, nil, w.fail(part.Rank, enc.Format(), "file_open", tmpPath, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(tmpPath)
	}
	return file, stats, cleanup, nil
}

func (w *baseWriter) fail(rank int, format edge.FileFormat, operation, path string, err error) error {
	if w.metrics != nil {
		w.metrics.IncStorageErrors(w.backend, operation)
		w.metrics.IncFilesWritten(rank, string(format), "failure")
	}
	return &apperrors.StorageError{Operation: operation, Path: path, Err: err}
}

func (w *baseWriter) succeed(part edge.Partition, format edge.FileFormat, stats *edge.FileStats, location string, start time.Time) {
	duration := time.Since(start)

	w.logger.Info("wrote partition",
		"rank", part.Rank,
		"location", location,
		"edge_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(part.Rank, string(format), "success")
		w.metrics.ObserveFileSize(part.Rank, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(w.backend, string(format), duration.Seconds())
	}
}

// markClosed reports whether the writer was open.
func (w *baseWriter) markClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	w.closed = true
	w.logger.Info("closing storage writer")
	return true
}
