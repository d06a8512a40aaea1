package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	pkgstorage "github.com/jittakal/edgeshuffle/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSObjects opens writers for objects of a bucket.
type GCSObjects interface {
	NewObjectWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

// gcsClient adapts *storage.Client to GCSObjects.
type gcsClient struct {
	client *storage.Client
}

func (c gcsClient) NewObjectWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// GCSWriter implements storage.Writer for Google Cloud Storage.
// It supports service account file, JSON and default credentials.
type GCSWriter struct {
	*baseWriter
	objects GCSObjects
	client  io.Closer
	bucket  string
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	cfg GCSConfig,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	ctx := context.Background()

	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		// GOOGLE_APPLICATION_CREDENTIALS or the attached service account
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"compression", compression,
	)

	w := newGCSWriter(gcsClient{client: client}, cfg, compression, logger, metrics)
	w.client = client
	return w, nil
}

func newGCSWriter(objects GCSObjects, cfg GCSConfig, compression string, logger *slog.Logger, metrics MetricsCollector) *GCSWriter {
	return &GCSWriter{
		baseWriter: newBaseWriter(BackendGCS, compression, logger, metrics),
		objects:    objects,
		bucket:     cfg.Bucket,
	}
}

// contentType returns the object content type of a format.
func contentType(format edge.FileFormat) string {
	if format == edge.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}

// Write uploads the partition to gs://bucket/<object>/part-NNNNN.<ext>.
func (w *GCSWriter) Write(
	ctx context.Context,
	part edge.Partition,
	path string,
	format edge.FileFormat,
) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	startTime := time.Now()

	enc, err := w.begin(ctx, part, format)
	if err != nil || enc == nil {
		return 0, err
	}

	objectPath := objectKey(path, "gs", PartFileName(part.Rank, enc.FileExtension()))

	file, stats, cleanup, err := w.stage(enc, part)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	gcsWriter := w.objects.NewObjectWriter(ctx, w.bucket, objectPath, contentType(format))

	if _, err := io.Copy(gcsWriter, file); err != nil {
		gcsWriter.Close()
		return 0, w.fail(part.Rank, format, "upload", objectPath, err)
	}

	// Close finalizes the upload
	if err := gcsWriter.Close(); err != nil {
		return 0, w.fail(part.Rank, format, "close", objectPath, err)
	}

	w.succeed(part, format, stats, fmt.Sprintf("gs://%s/%s", w.bucket, objectPath), startTime)
	return stats.SizeBytes, nil
}

// Close closes the GCS writer.
func (w *GCSWriter) Close() error {
	if !w.markClosed() {
		return nil
	}
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
