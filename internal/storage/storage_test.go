package storage

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jittakal/edgeshuffle/pkg/edge"
)

type mockMetrics struct {
	mu           sync.Mutex
	filesWritten map[string]int
	errors       map[string]int
	sizes        []float64
	durations    int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		filesWritten: make(map[string]int),
		errors:       make(map[string]int),
	}
}

func (m *mockMetrics) IncFilesWritten(rank int, format string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesWritten[status]++
}

func (m *mockMetrics) ObserveFileSize(rank int, format string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, size)
}

func (m *mockMetrics) ObserveStorageWriteDuration(backend string, format string, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *mockMetrics) IncStorageErrors(backend string, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[backend+"/"+operation]++
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePartition(rank, n int) edge.Partition {
	cols := edge.NewColumns(n, edge.Attributes{Weight: true})
	for i := 0; i < n; i++ {
		cols.Src[i] = edge.VertexID(i)
		cols.Dst[i] = edge.VertexID(i + 1)
		cols.Weights[i] = edge.Weight(i) / 2
	}
	return edge.Partition{Rank: rank, Columns: cols}
}

func TestPartFileName(t *testing.T) {
	tests := []struct {
		rank int
		ext  string
		want string
	}{
		{0, ".parquet", "part-00000.parquet"},
		{42, ".avro", "part-00042.avro"},
		{123456, ".parquet", "part-123456.parquet"},
	}

	for _, tt := range tests {
		if got := PartFileName(tt.rank, tt.ext); got != tt.want {
			t.Errorf("PartFileName(%d, %q) = %q, want %q", tt.rank, tt.ext, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		scheme string
		want   string
	}{
		{
			name:   "full uri",
			path:   "s3://lake/graphs/web/major-src/rank=1/",
			scheme: "s3",
			want:   "graphs/web/major-src/rank=1/part-00001.parquet",
		},
		{
			name:   "bucket only",
			path:   "s3://lake",
			scheme: "s3",
			want:   "part-00001.parquet",
		},
		{
			name:   "bare key without trailing slash",
			path:   "graphs/web",
			scheme: "s3",
			want:   "graphs/web/part-00001.parquet",
		},
		{
			name:   "leading slash trimmed",
			path:   "/graphs/",
			scheme: "gs",
			want:   "graphs/part-00001.parquet",
		},
		{
			name:   "other scheme left alone",
			path:   "gs://bucket/a/",
			scheme: "s3",
			want:   "gs://bucket/a/part-00001.parquet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := objectKey(tt.path, tt.scheme, "part-00001.parquet")
			if got != tt.want {
				t.Errorf("objectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
