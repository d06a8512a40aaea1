// Package config loads the application configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/edgeshuffle/internal/config/dto"
)

// Ingest sources.
const (
	SourceKafka   = "kafka"
	SourceParquet = "parquet"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing ${...}
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "edgeshuffle")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Graph defaults
	l.v.SetDefault("graph.name", "graph")
	l.v.SetDefault("graph.chunk_capacity", 1<<20)
	l.v.SetDefault("graph.use_weight", false)
	l.v.SetDefault("graph.use_edge_id", false)
	l.v.SetDefault("graph.use_edge_type", false)
	l.v.SetDefault("graph.transposed", false)

	// Fleet defaults
	l.v.SetDefault("fleet.devices", 1)
	l.v.SetDefault("fleet.memory_limit_mb", 0)
	l.v.SetDefault("fleet.stream_depth", 64)

	// Ingest defaults
	l.v.SetDefault("ingest.source", SourceKafka)
	l.v.SetDefault("ingest.workers", 4)
	l.v.SetDefault("ingest.parquet.batch_size", 4096)

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "SASL_SSL")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.enable_auto_commit", false)
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.consumer.event_type", "graph.edges.appended")
	l.v.SetDefault("kafka.consumer.max_edges", 0)
	l.v.SetDefault("kafka.consumer.idle_timeout_ms", 30000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")
	l.v.SetDefault("kafka.dlq.default_topic", "edges")

	// Storage defaults
	l.v.SetDefault("storage.enabled", true)
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.base_path", "graphs")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
	l.v.SetDefault("shutdown.force_timeout_seconds", 60)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	// Ingest validation
	if config.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be positive, got %d", config.Ingest.Workers)
	}
	switch config.Ingest.Source {
	case SourceKafka:
		if len(config.Kafka.BootstrapServers) == 0 {
			return errors.New("kafka.bootstrap_servers is required")
		}
		if len(config.Kafka.Consumer.Topics) == 0 {
			return errors.New("kafka.consumer.topics is required")
		}
		if config.Kafka.Consumer.GroupID == "" {
			return errors.New("kafka.consumer.group_id is required")
		}
		if config.Kafka.Consumer.MaxEdges <= 0 && config.Kafka.Consumer.IdleTimeoutMS <= 0 {
			return errors.New("kafka.consumer needs max_edges or idle_timeout_ms to end ingest")
		}
	case SourceParquet:
		if len(config.Ingest.Parquet.Files) == 0 {
			return errors.New("ingest.parquet.files is required for parquet source")
		}
		if config.Ingest.Parquet.BatchSize < 1 {
			return fmt.Errorf("ingest.parquet.batch_size must be positive, got %d", config.Ingest.Parquet.BatchSize)
		}
	default:
		return fmt.Errorf("unsupported ingest source: %s", config.Ingest.Source)
	}

	// Storage validation
	if config.Storage.Enabled {
		if err := validateStorage(&config.Storage); err != nil {
			return err
		}
	}

	// Port validation
	if config.Observability.Metrics.Enabled {
		if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
		}
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateStorage(config *dto.StorageConfig) error {
	var err error
	switch config.Backend {
	case "s3":
		err = config.S3.Validate()
	case "azure":
		err = config.Azure.Validate()
	case "gcs":
		err = config.GCS.Validate()
	case "file":
		err = config.File.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Backend)
	}
	if err != nil {
		return fmt.Errorf("storage.%s: %w", config.Backend, err)
	}

	if config.Format != "parquet" && config.Format != "avro" {
		return fmt.Errorf("unsupported storage format: %s", config.Format)
	}
	return nil
}
