package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Uploader uploads one object. *manager.Uploader implements it.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer implements storage.Writer for AWS S3 storage.
// It provides multipart upload support and server-side encryption (SSE).
type S3Writer struct {
	*baseWriter
	uploader    S3Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	cfg S3Config,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	// Load AWS config
	ctx := context.Background()
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return newS3Writer(uploader, cfg, compression, logger, metrics), nil
}

func newS3Writer(uploader S3Uploader, cfg S3Config, compression string, logger *slog.Logger, metrics MetricsCollector) *S3Writer {
	return &S3Writer{
		baseWriter:  newBaseWriter(BackendS3, compression, logger, metrics),
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
	}
}

// Write uploads the partition to s3://bucket/<key>/part-NNNNN.<ext>.
// path may be an s3:// URI or a bare key prefix.
func (w *S3Writer) Write(
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

	s3Key := objectKey(path, "s3", PartFileName(part.Rank, fileEncoder.FileExtension()))

	file, stats, cleanup, err := w.stage(fileEncoder, part)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	uploadInput := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	}

	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			uploadInput.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := w.uploader.Upload(ctx, uploadInput)
	if err != nil {
		return 0, w.fail(part.Rank, format, "upload", s3Key, err)
	}

	w.succeed(part, format, stats, result.Location, startTime)
	return stats.SizeBytes, nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.markClosed()
	return nil
}
