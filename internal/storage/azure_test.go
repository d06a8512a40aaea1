package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

type mockAzureUploader struct {
	container   string
	blob        string
	contentType string
	size        int
	err         error
}

func (m *mockAzureUploader) UploadFile(ctx context.Context, containerName, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error) {
	if m.err != nil {
		return azblob.UploadFileResponse{}, m.err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return azblob.UploadFileResponse{}, err
	}
	m.container = containerName
	m.blob = blobName
	m.size = len(data)
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		m.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadFileResponse{}, nil
}

func TestAzureWriter_Write(t *testing.T) {
	uploader := &mockAzureUploader{}
	metrics := newMockMetrics()
	w := newAzureWriter(uploader, AzureConfig{ContainerName: "edges"}, "snappy", newTestLogger(), metrics)
	defer w.Close()

	path := NewRouter("wasbs", "edges", "graphs").Route("web", 7, true)
	n, err := w.Write(context.Background(), samplePartition(7, 12), path, edge.FormatAvro)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if uploader.container != "edges" {
		t.Errorf("container = %q, want edges", uploader.container)
	}
	if want := "graphs/web/major-dst/rank=7/part-00007.avro"; uploader.blob != want {
		t.Errorf("blob = %q, want %q", uploader.blob, want)
	}
	if uploader.contentType != "application/avro" {
		t.Errorf("content type = %q", uploader.contentType)
	}
	if int64(uploader.size) != n {
		t.Errorf("uploaded %d bytes, Write() returned %d", uploader.size, n)
	}
	if metrics.filesWritten["success"] != 1 {
		t.Errorf("files written = %v", metrics.filesWritten)
	}
}

func TestAzureWriter_Errors(t *testing.T) {
	uploadErr := errors.New("container not found")
	metrics := newMockMetrics()
	w := newAzureWriter(&mockAzureUploader{err: uploadErr}, AzureConfig{ContainerName: "edges"}, "", newTestLogger(), metrics)

	_, err := w.Write(context.Background(), samplePartition(0, 2), "wasbs://edges/g/", edge.FormatParquet)
	if !errors.Is(err, uploadErr) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if metrics.errors["azure/upload"] != 1 {
		t.Errorf("errors = %v", metrics.errors)
	}

	w.Close()
	_, err = w.Write(context.Background(), samplePartition(0, 2), "wasbs://edges/g/", edge.FormatParquet)
	if !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}
