package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// AzureUploader uploads a local file as a block blob. *azblob.Client implements it.
type AzureUploader interface {
	UploadFile(ctx context.Context, containerName, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// AzureWriter implements storage.Writer for Azure Blob Storage
// using access key authentication.
type AzureWriter struct {
	*baseWriter
	uploader      AzureUploader
	containerName string
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"compression", compression,
	)

	return newAzureWriter(client, cfg, compression, logger, metrics), nil
}

func newAzureWriter(uploader AzureUploader, cfg AzureConfig, compression string, logger *slog.Logger, metrics MetricsCollector) *AzureWriter {
	return &AzureWriter{
		baseWriter:    newBaseWriter(BackendAzure, compression, logger, metrics),
		uploader:      uploader,
		containerName: cfg.ContainerName,
	}
}

// Write uploads the partition to wasbs://container/<blob>/part-NNNNN.<ext>.
func (w *AzureWriter) Write(ctx context.Context, part edge.Partition, path string, format edge.FileFormat) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	startTime := time.Now()

	enc, err := w.begin(ctx, part, format)
	if err != nil || enc == nil {
		return 0, err
	}

	blobPath := objectKey(path, "wasbs", PartFileName(part.Rank, enc.FileExtension()))

	file, stats, cleanup, err := w.stage(enc, part)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	ct := contentType(format)
	_, err = w.uploader.UploadFile(ctx, w.containerName, blobPath, file, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return 0, w.fail(part.Rank, format, "upload", blobPath, err)
	}

	w.succeed(part, format, stats, fmt.Sprintf("wasbs://%s/%s", w.containerName, blobPath), startTime)
	return stats.SizeBytes, nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.markClosed()
	return nil
}
