package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Partitions are encoded in place under BasePath joined with the routed path.
type FileWriter struct {
	*baseWriter
	basePath string
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	// Ensure base path exists
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"compression", compression,
	)

	return &FileWriter{
		baseWriter: newBaseWriter(BackendFile, compression, logger, metrics),
		basePath:   config.BasePath,
	}, nil
}

// Write encodes the partition to <basePath>/<path>/part-NNNNN.<ext>.
func (w *FileWriter) Write(
	ctx context.Context,
	part edge.Partition,
	path string,
	format edge.FileFormat,
) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	startTime := time.Now()

	fileEncoder, err := w.begin(ctx, part, format)
	if err != nil || fileEncoder == nil {
		return 0, err
	}

	// Strip file:// protocol prefix if present
	cleanPath := strings.TrimPrefix(path, "file://")

	dir := filepath.Join(w.basePath, cleanPath)
	fullPath := filepath.Join(dir, PartFileName(part.Rank, fileEncoder.FileExtension()))

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, w.fail(part.Rank, format, "mkdir", dir, err)
	}

	stats, err := fileEncoder.Encode(fullPath, part)
	if err != nil {
		return 0, w.fail(part.Rank, format, "encode", fullPath, err)
	}

	w.succeed(part, format, stats, fullPath, startTime)
	return stats.SizeBytes, nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.markClosed()
	return nil
}
