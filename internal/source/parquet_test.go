package source

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jittakal/edgeshuffle/internal/encoder"
	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeEdges writes n weighted edges starting at vertex base and returns the file path.
func writeEdges(t *testing.T, dir, name string, base, n int) string {
	t.Helper()

	cols := edge.NewColumns(n, edge.Attributes{Weight: true})
	for i := 0; i < n; i++ {
		cols.Src[i] = edge.VertexID(base + i)
		cols.Dst[i] = edge.VertexID(base + i + 1)
		cols.Weights[i] = edge.Weight(i)
	}

	path := filepath.Join(dir, name)
	if _, err := encoder.NewParquetEncoder("snappy").Encode(path, edge.Partition{Columns: cols}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return path
}

func drain(batches <-chan *edge.ConsumedBatch, errs <-chan error) ([]*edge.ConsumedBatch, []error) {
	var got []*edge.ConsumedBatch
	for b := range batches {
		got = append(got, b)
	}
	var gotErrs []error
	for err := range errs {
		gotErrs = append(gotErrs, err)
	}
	return got, gotErrs
}

func TestNewParquetSource(t *testing.T) {
	tests := []struct {
		name          string
		config        ParquetConfig
		wantErr       bool
		wantBatchSize int
	}{
		{"no files", ParquetConfig{}, true, 0},
		{"default batch size", ParquetConfig{Files: []string{"a.parquet"}}, false, DefaultBatchSize},
		{"explicit batch size", ParquetConfig{Files: []string{"a.parquet"}, BatchSize: 10}, false, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewParquetSource(tt.config, newTestLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewParquetSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && src.config.BatchSize != tt.wantBatchSize {
				t.Errorf("BatchSize = %d, want %d", src.config.BatchSize, tt.wantBatchSize)
			}
		})
	}
}

func TestParquetSource_Batches(t *testing.T) {
	dir := t.TempDir()
	first := writeEdges(t, dir, "a.parquet", 0, 10)
	second := writeEdges(t, dir, "b.parquet", 100, 3)

	src, err := NewParquetSource(ParquetConfig{
		Files:      []string{first, second},
		BatchSize:  4,
		Attributes: edge.Attributes{Weight: true},
	}, newTestLogger())
	if err != nil {
		t.Fatalf("NewParquetSource() error = %v", err)
	}

	batches, errs, err := src.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	got, gotErrs := drain(batches, errs)
	if len(gotErrs) != 0 {
		t.Fatalf("errors = %v", gotErrs)
	}

	var sizes []int
	total := 0
	for _, b := range got {
		sizes = append(sizes, b.Columns.Len())
		total += b.Columns.Len()
		if b.Columns.Len() > 4 {
			t.Errorf("batch of %d rows exceeds the batch size", b.Columns.Len())
		}
		if b.Columns.Weights == nil || b.Columns.EdgeIDs != nil {
			t.Errorf("batch attributes = %s, want src,dst,wgt", b.Columns.Attributes())
		}
		if b.Metadata.Source != SourceName || b.CommitFunc != nil {
			t.Errorf("metadata = %+v", b.Metadata)
		}
	}
	if total != 13 {
		t.Errorf("total edges = %d, want 13 (sizes %v)", total, sizes)
	}

	last := got[len(got)-1]
	if last.Columns.Src[last.Columns.Len()-1] != 102 {
		t.Errorf("last src = %d, want 102", last.Columns.Src[last.Columns.Len()-1])
	}
	if got[1].Metadata.Offset != 4 || got[1].Metadata.EventID != first+"@4" {
		t.Errorf("second batch metadata = %+v", got[1].Metadata)
	}
}

func TestParquetSource_BadFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeEdges(t, dir, "good.parquet", 0, 5)

	src, err := NewParquetSource(ParquetConfig{
		Files:      []string{filepath.Join(dir, "missing.parquet"), good},
		BatchSize:  100,
		Attributes: edge.Attributes{Weight: true},
	}, newTestLogger())
	if err != nil {
		t.Fatalf("NewParquetSource() error = %v", err)
	}

	batches, errs, err := src.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	got, gotErrs := drain(batches, errs)
	if len(gotErrs) != 1 {
		t.Errorf("len(errors) = %d, want 1", len(gotErrs))
	}
	if len(got) != 1 || got[0].Columns.Len() != 5 {
		t.Errorf("batches = %d, want one batch of 5 edges from the good file", len(got))
	}
}

func TestParquetSource_MissingAttribute(t *testing.T) {
	path := writeEdges(t, t.TempDir(), "weights-only.parquet", 0, 5)

	src, err := NewParquetSource(ParquetConfig{
		Files:      []string{path},
		Attributes: edge.Attributes{Weight: true, EdgeType: true},
	}, newTestLogger())
	if err != nil {
		t.Fatalf("NewParquetSource() error = %v", err)
	}

	batches, errs, err := src.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	got, gotErrs := drain(batches, errs)
	if len(got) != 0 {
		t.Errorf("len(batches) = %d, want 0", len(got))
	}
	if len(gotErrs) != 1 {
		t.Errorf("len(errors) = %d, want 1", len(gotErrs))
	}
}

func TestParquetSource_Cancelled(t *testing.T) {
	path := writeEdges(t, t.TempDir(), "many.parquet", 0, 200)

	src, err := NewParquetSource(ParquetConfig{
		Files:      []string{path},
		BatchSize:  1,
		Attributes: edge.Attributes{Weight: true},
	}, newTestLogger())
	if err != nil {
		t.Fatalf("NewParquetSource() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	batches, errs, err := src.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	<-batches
	cancel()

	got, gotErrs := drain(batches, errs)
	if len(got) >= 199 {
		t.Errorf("read %d more batches after cancel, expected the source to stop", len(got))
	}
	if len(gotErrs) != 0 {
		t.Errorf("cancellation should not be reported as an error: %v", gotErrs)
	}
}

func TestParquetSource_Closed(t *testing.T) {
	src, err := NewParquetSource(ParquetConfig{Files: []string{"a.parquet"}}, newTestLogger())
	if err != nil {
		t.Fatalf("NewParquetSource() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, _, err := src.Consume(context.Background()); !stderrors.Is(err, errors.ErrSourceClosed) {
		t.Errorf("Consume() after Close error = %v, want ErrSourceClosed", err)
	}
}
