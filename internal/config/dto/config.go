package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Graph         GraphConfig         `mapstructure:"graph"`
	Fleet         FleetConfig         `mapstructure:"fleet"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// GraphConfig describes the edge lists being built
type GraphConfig struct {
	Name          string `mapstructure:"name"`
	ChunkCapacity int    `mapstructure:"chunk_capacity"`
	UseWeight     bool   `mapstructure:"use_weight"`
	UseEdgeID     bool   `mapstructure:"use_edge_id"`
	UseEdgeType   bool   `mapstructure:"use_edge_type"`
	Transposed    bool   `mapstructure:"transposed"`
}

// FleetConfig contains the simulated device fleet settings
type FleetConfig struct {
	Devices       int   `mapstructure:"devices"`
	MemoryLimitMB int64 `mapstructure:"memory_limit_mb"`
	StreamDepth   int   `mapstructure:"stream_depth"`
}

// MemoryLimitBytes returns the per-device memory limit, 0 for unlimited.
func (c FleetConfig) MemoryLimitBytes() int64 {
	return c.MemoryLimitMB * 1024 * 1024
}

// IngestConfig selects where edges come from
type IngestConfig struct {
	Source  string              `mapstructure:"source"`
	Workers int                 `mapstructure:"workers"`
	Parquet ParquetSourceConfig `mapstructure:"parquet"`
}

// ParquetSourceConfig contains Parquet edge source settings
type ParquetSourceConfig struct {
	Files     []string `mapstructure:"files"`
	BatchSize int      `mapstructure:"batch_size"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	EnableAutoCommit    bool     `mapstructure:"enable_auto_commit"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
	EventType           string   `mapstructure:"event_type"`
	MaxEdges            int64    `mapstructure:"max_edges"`
	IdleTimeoutMS       int      `mapstructure:"idle_timeout_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TopicSuffix  string `mapstructure:"topic_suffix"`
	DefaultTopic string `mapstructure:"default_topic"`
}

// StorageConfig contains export storage configuration
type StorageConfig struct {
	Enabled     bool        `mapstructure:"enabled"`
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	BasePath    string      `mapstructure:"base_path"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod returns the time allowed for in-flight work on shutdown.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ForceTimeout returns the time after which shutdown stops waiting.
func (c ShutdownConfig) ForceTimeout() time.Duration {
	return time.Duration(c.ForceTimeoutSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if err := c.Graph.Validate(); err != nil {
		return err
	}
	return c.Fleet.Validate()
}

// Validate validates graph configuration.
func (c *GraphConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	if c.ChunkCapacity < 1 {
		return fmt.Errorf("graph chunk capacity must be positive, got %d", c.ChunkCapacity)
	}
	return nil
}

// Validate validates fleet configuration.
func (c *FleetConfig) Validate() error {
	if c.Devices < 1 {
		return fmt.Errorf("fleet needs at least one device, got %d", c.Devices)
	}
	if c.MemoryLimitMB < 0 {
		return fmt.Errorf("fleet memory limit must not be negative, got %d", c.MemoryLimitMB)
	}
	if c.StreamDepth < 1 {
		return fmt.Errorf("fleet stream depth must be positive, got %d", c.StreamDepth)
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
