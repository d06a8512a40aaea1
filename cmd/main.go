package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/edgeshuffle/internal/config"
	"github.com/jittakal/edgeshuffle/internal/config/dto"
	"github.com/jittakal/edgeshuffle/internal/coordinator"
	"github.com/jittakal/edgeshuffle/internal/device"
	"github.com/jittakal/edgeshuffle/internal/kafka"
	"github.com/jittakal/edgeshuffle/internal/observability"
	"github.com/jittakal/edgeshuffle/internal/server"
	"github.com/jittakal/edgeshuffle/internal/shuffle"
	"github.com/jittakal/edgeshuffle/internal/source"
	"github.com/jittakal/edgeshuffle/internal/storage"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	pkgsource "github.com/jittakal/edgeshuffle/pkg/source"
	pkgstorage "github.com/jittakal/edgeshuffle/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
	})
	logger.Info("starting edgeshuffle",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"graph", cfg.Graph.Name,
		"devices", cfg.Fleet.Devices,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanup runs in reverse registration order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				logger.Error("cleanup failed", "component", name, "error", err)
				return err
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			_ = cleanupFuncs[i]()
		}
	}()

	handles, err := newDevices(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create devices: %w", err)
	}
	for _, h := range handles {
		addCleanup(fmt.Sprintf("device-%d", h.Rank()), h.Close)
	}

	var opts []coordinator.Option
	consumerConfig := kafkaConsumerConfig(cfg)
	if cfg.Kafka.DLQ.Enabled && len(cfg.Kafka.BootstrapServers) > 0 {
		dlqPublisher, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, consumerConfig, kafka.DLQConfig{
			Enabled:      true,
			TopicSuffix:  cfg.Kafka.DLQ.TopicSuffix,
			DefaultTopic: cfg.Kafka.DLQ.DefaultTopic,
		}, logger, "")
		if err != nil {
			return fmt.Errorf("failed to create DLQ publisher: %w", err)
		}
		addCleanup("dlq-publisher", dlqPublisher.Close)
		opts = append(opts, coordinator.WithDLQ(dlqPublisher))
	}

	coord, err := coordinator.New(device.Handles(handles), coordinator.Config{
		ChunkCapacity: cfg.Graph.ChunkCapacity,
		Attributes: edge.Attributes{
			Weight:   cfg.Graph.UseWeight,
			EdgeID:   cfg.Graph.UseEdgeID,
			EdgeType: cfg.Graph.UseEdgeType,
		},
		Transposed: cfg.Graph.Transposed,
	}, logger, metrics, opts...)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	addCleanup("coordinator", func() error {
		coord.Release()
		return nil
	})

	httpServer := server.NewServer(server.Config{
		HealthPort:  cfg.Observability.Health.Port,
		MetricsPort: cfg.Observability.Metrics.Port,
	}, coord, coord, registry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.ForceTimeout())
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	src, err := newSource(cfg, consumerConfig, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create %s source: %w", cfg.Ingest.Source, err)
	}
	addCleanup("edge-source", src.Close)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batches, sourceErrs, err := src.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	go logSourceErrors(sourceErrs, logger)

	logger.Info("application started successfully")

	if err := coord.Ingest(ctx, batches, cfg.Ingest.Workers); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("received termination signal during ingest")
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	parts, err := coord.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	for _, s := range coord.Stats() {
		logger.Info("device partition ready", "rank", s.Rank, "edges", s.Edges, "chunks", s.Chunks)
	}

	if cfg.Storage.Enabled {
		if err := export(ctx, cfg, parts, logger, metrics); err != nil {
			return err
		}
	}

	logger.Info("application stopped successfully")
	return nil
}

// newDevices builds one device, or a fleet sharing an in-process shuffle.
func newDevices(cfg *dto.ApplicationConfig, logger *slog.Logger) ([]*device.Handle, error) {
	deviceConfig := device.Config{
		MemoryLimitBytes: cfg.Fleet.MemoryLimitBytes(),
		StreamDepth:      cfg.Fleet.StreamDepth,
	}

	if cfg.Fleet.Devices == 1 {
		return []*device.Handle{device.NewSingle(deviceConfig)}, nil
	}

	fleet, err := shuffle.NewFleet(cfg.Fleet.Devices, logger)
	if err != nil {
		return nil, err
	}
	return device.NewFleet(cfg.Fleet.Devices, deviceConfig, fleet)
}

func kafkaConsumerConfig(cfg *dto.ApplicationConfig) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		Topics:              cfg.Kafka.Consumer.Topics,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		SecurityProtocol:    cfg.Kafka.SecurityProtocol,
		SASLMechanism:       cfg.Kafka.SASLMechanism,
		SASLUsername:        cfg.Kafka.SASLUsername,
		SASLPassword:        cfg.Kafka.SASLPassword,
		AWSRegion:           cfg.Kafka.AWSRegion,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		EnableAutoCommit:    cfg.Kafka.Consumer.EnableAutoCommit,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		EventType:           cfg.Kafka.Consumer.EventType,
		MaxEdges:            cfg.Kafka.Consumer.MaxEdges,
		IdleTimeoutMS:       cfg.Kafka.Consumer.IdleTimeoutMS,
	}
}

func newSource(
	cfg *dto.ApplicationConfig,
	consumerConfig kafka.ConsumerConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (pkgsource.Source, error) {
	switch cfg.Ingest.Source {
	case config.SourceKafka:
		return kafka.NewSaramaConsumer(consumerConfig, logger, metrics)
	case config.SourceParquet:
		return source.NewParquetSource(source.ParquetConfig{
			Files:     cfg.Ingest.Parquet.Files,
			BatchSize: cfg.Ingest.Parquet.BatchSize,
			Attributes: edge.Attributes{
				Weight:   cfg.Graph.UseWeight,
				EdgeID:   cfg.Graph.UseEdgeID,
				EdgeType: cfg.Graph.UseEdgeType,
			},
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported ingest source: %s", cfg.Ingest.Source)
	}
}

func logSourceErrors(errs <-chan error, logger *slog.Logger) {
	for err := range errs {
		logger.Error("source error", "error", err)
	}
}

func export(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	parts []edge.Partition,
	logger *slog.Logger,
	metrics *observability.Metrics,
) error {
	writer, bucket, err := newWriter(cfg.Storage, logger, metrics)
	if err != nil {
		return err
	}
	defer writer.Close()

	router := storage.NewRouter(storage.Protocol(cfg.Storage.Backend), bucket, cfg.Storage.BasePath)
	exporter := storage.NewExporter(writer, router, storage.ExportConfig{
		Graph:      cfg.Graph.Name,
		Transposed: cfg.Graph.Transposed,
		Format:     edge.FileFormat(cfg.Storage.Format),
	}, logger)

	if _, err := exporter.Export(ctx, parts); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

// newWriter creates the storage writer of the configured backend and returns
// the bucket name used in routes.
func newWriter(cfg dto.StorageConfig, logger *slog.Logger, metrics *observability.Metrics) (pkgstorage.Writer, string, error) {
	switch cfg.Backend {
	case storage.BackendFile:
		w, err := storage.NewFileWriter(storage.FileConfig{
			BasePath: cfg.File.BasePath,
		}, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create filesystem writer: %w", err)
		}
		return w, "", nil
	case storage.BackendS3:
		w, err := storage.NewS3Writer(storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create S3 writer: %w", err)
		}
		return w, cfg.S3.Bucket, nil
	case storage.BackendAzure:
		accountKey := cfg.Azure.AccountKey
		if accountKey == "" {
			accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		w, err := storage.NewAzureWriter(storage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Azure Blob writer: %w", err)
		}
		return w, cfg.Azure.Container, nil
	case storage.BackendGCS:
		credentialsJSON := cfg.GCS.CredentialsJSON
		if credentialsJSON == "" {
			credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		w, err := storage.NewGCSWriter(storage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			Endpoint:             cfg.GCS.Endpoint,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, cfg.Compression, logger, metrics)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create GCS writer: %w", err)
		}
		return w, cfg.GCS.Bucket, nil
	default:
		return nil, "", fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
}
