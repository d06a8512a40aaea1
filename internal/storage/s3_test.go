package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	apperrors "github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

type mockUploader struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	m.bodies = append(m.bodies, body)
	return &manager.UploadOutput{
		Location: "https://" + aws.ToString(input.Bucket) + ".s3.amazonaws.com/" + aws.ToString(input.Key),
	}, nil
}

func TestS3Writer_Write(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantSSE types.ServerSideEncryption
		wantKMS string
	}{
		{
			name:   "no encryption",
			config: S3Config{Bucket: "lake", Region: "us-east-1"},
		},
		{
			name:    "SSE-S3",
			config:  S3Config{Bucket: "lake", Region: "us-east-1", SSEEnabled: true},
			wantSSE: types.ServerSideEncryptionAes256,
		},
		{
			name: "SSE-KMS",
			config: S3Config{
				Bucket:      "lake",
				Region:      "us-east-1",
				SSEEnabled:  true,
				SSEKMSKeyID: "arn:aws:kms:us-east-1:123456789012:key/test",
			},
			wantSSE: types.ServerSideEncryptionAwsKms,
			wantKMS: "arn:aws:kms:us-east-1:123456789012:key/test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &mockUploader{}
			metrics := newMockMetrics()
			w := newS3Writer(uploader, tt.config, "zstd", newTestLogger(), metrics)
			defer w.Close()

			path := NewRouter("s3", "lake", "graphs").Route("web", 4, true)
			n, err := w.Write(context.Background(), samplePartition(4, 20), path, edge.FormatParquet)
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			if len(uploader.inputs) != 1 {
				t.Fatalf("expected 1 upload, got %d", len(uploader.inputs))
			}
			input := uploader.inputs[0]
			if got := aws.ToString(input.Bucket); got != "lake" {
				t.Errorf("Bucket = %q, want lake", got)
			}
			if got, want := aws.ToString(input.Key), "graphs/web/major-dst/rank=4/part-00004.parquet"; got != want {
				t.Errorf("Key = %q, want %q", got, want)
			}
			if input.ServerSideEncryption != tt.wantSSE {
				t.Errorf("ServerSideEncryption = %q, want %q", input.ServerSideEncryption, tt.wantSSE)
			}
			if got := aws.ToString(input.SSEKMSKeyId); got != tt.wantKMS {
				t.Errorf("SSEKMSKeyId = %q, want %q", got, tt.wantKMS)
			}
			if int64(len(uploader.bodies[0])) != n {
				t.Errorf("uploaded %d bytes, Write() returned %d", len(uploader.bodies[0]), n)
			}
			if string(uploader.bodies[0][:4]) != "PAR1" {
				t.Errorf("uploaded body is not a parquet file")
			}
			if metrics.filesWritten["success"] != 1 {
				t.Errorf("files written = %v", metrics.filesWritten)
			}
		})
	}
}

func TestS3Writer_UploadError(t *testing.T) {
	uploadErr := errors.New("access denied")
	uploader := &mockUploader{err: uploadErr}
	metrics := newMockMetrics()
	w := newS3Writer(uploader, S3Config{Bucket: "lake"}, "", newTestLogger(), metrics)
	defer w.Close()

	_, err := w.Write(context.Background(), samplePartition(0, 3), "s3://lake/g/", edge.FormatAvro)
	if !errors.Is(err, uploadErr) {
		t.Fatalf("expected upload error, got %v", err)
	}
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "upload" {
		t.Errorf("expected upload StorageError, got %v", err)
	}
	if metrics.errors["s3/upload"] != 1 {
		t.Errorf("errors = %v", metrics.errors)
	}
}

func TestS3Writer_EmptyAndClosed(t *testing.T) {
	uploader := &mockUploader{}
	w := newS3Writer(uploader, S3Config{Bucket: "lake"}, "", newTestLogger(), nil)

	n, err := w.Write(context.Background(), samplePartition(0, 0), "s3://lake/g/", edge.FormatParquet)
	if err != nil || n != 0 {
		t.Errorf("Write(empty) = %d, %v; want 0, nil", n, err)
	}
	if len(uploader.inputs) != 0 {
		t.Errorf("expected no upload for empty partition")
	}

	w.Close()
	if _, err := w.Write(context.Background(), samplePartition(0, 1), "s3://lake/g/", edge.FormatParquet); !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}
