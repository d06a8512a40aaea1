// Package source implements file based edge sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/edgeshuffle/internal/encoder"
	apperrors "github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/source"
)

// Ensure implementation satisfies interface at compile time.
var _ source.Source = (*ParquetSource)(nil)

// SourceName labels batches read from Parquet files.
const SourceName = "parquet"

// DefaultBatchSize is used when ParquetConfig.BatchSize is not positive.
const DefaultBatchSize = 4096

// ParquetConfig configures a ParquetSource.
type ParquetConfig struct {
	Files      []string
	BatchSize  int
	Attributes edge.Attributes
}

// ParquetSource reads edges from Parquet files in the encoder's row schema
// and emits them in batches of at most BatchSize rows. Files are read in order.
type ParquetSource struct {
	config ParquetConfig
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewParquetSource creates a source over the configured files.
func NewParquetSource(config ParquetConfig, logger *slog.Logger) (*ParquetSource, error) {
	if len(config.Files) == 0 {
		return nil, fmt.Errorf("at least one parquet file is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &ParquetSource{
		config: config,
		logger: logger.With("source", SourceName),
	}, nil
}

// Consume starts reading the files in the background.
// A file that cannot be opened or decoded is reported on the error channel
// and skipped.
func (s *ParquetSource) Consume(ctx context.Context) (<-chan *edge.ConsumedBatch, <-chan error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, apperrors.ErrSourceClosed
	}

	batchChan := make(chan *edge.ConsumedBatch, 16)
	errorChan := make(chan error, len(s.config.Files))

	go func() {
		defer close(batchChan)
		defer close(errorChan)

		for _, path := range s.config.Files {
			if err := s.readFile(ctx, path, batchChan); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("failed to read parquet file", "path", path, "error", err)
				errorChan <- fmt.Errorf("%s: %w", path, err)
			}
		}
		s.logger.Info("parquet source exhausted", "files", len(s.config.Files))
	}()

	return batchChan, errorChan, nil
}

func (s *ParquetSource) readFile(ctx context.Context, path string, out chan<- *edge.ConsumedBatch) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}

	s.logger.Info("reading parquet file",
		"path", path,
		"rows", pf.NumRows(),
		"row_groups", len(pf.RowGroups()),
	)

	var offset int64
	for _, rowGroup := range pf.RowGroups() {
		reader := parquet.NewGenericRowGroupReader[encoder.EdgeParquet](rowGroup)
		err := s.readRowGroup(ctx, path, reader, &offset, out)
		reader.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ParquetSource) readRowGroup(
	ctx context.Context,
	path string,
	reader *parquet.GenericReader[encoder.EdgeParquet],
	offset *int64,
	out chan<- *edge.ConsumedBatch,
) error {
	rows := make([]encoder.EdgeParquet, s.config.BatchSize)
	for {
		n, readErr := reader.Read(rows)
		if n > 0 {
			cols, err := encoder.FromParquetRows(rows[:n], s.config.Attributes)
			if err != nil {
				return fmt.Errorf("offset %d: %w", *offset, err)
			}

			batch := &edge.ConsumedBatch{
				Columns: cols,
				Metadata: edge.SourceMetadata{
					Source:  SourceName,
					Offset:  *offset,
					EventID: fmt.Sprintf("%s@%d", path, *offset),
				},
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			*offset += int64(n)
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read rows: %w", readErr)
		}
	}
}

// Close marks the source closed. Reads already in progress finish.
func (s *ParquetSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
