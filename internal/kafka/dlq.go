package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/internal/validator"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/source"
)

// Ensure implementation satisfies interface at compile time.
var _ source.DLQPublisher = (*DLQPublisher)(nil)

// RejectedEventType is the CloudEvent type of DLQ records.
const RejectedEventType = "graph.edges.rejected"

// DLQRecord is the data of a rejected batch event.
type DLQRecord struct {
	Batch            edge.Columns `json:"batch"`
	OriginalSource   string       `json:"original_source"`
	OriginalTopic    string       `json:"original_topic,omitempty"`
	OriginalPart     int32        `json:"original_partition"`
	OriginalOffset   int64        `json:"original_offset"`
	OriginalEventID  string       `json:"original_event_id,omitempty"`
	FailureReason    string       `json:"failure_reason"`
	FailureTimestamp time.Time    `json:"failure_timestamp"`
	ProcessorID      string       `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
	// DefaultTopic names the DLQ topic for batches that did not come from Kafka.
	DefaultTopic string
}

// DLQPublisher publishes rejected edge batches to a dead letter queue.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	mu          sync.RWMutex
	closed      bool
	processorID string
}

// NewDLQPublisher creates a new DLQ publisher.
// An empty processorID is replaced by a random UUID.
func NewDLQPublisher(
	bootstrapServers []string,
	securityConfig ConsumerConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, processorID), nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, securityConfig); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return newDLQPublisher(producer, dlqConfig, logger, processorID), nil
}

func newDLQPublisher(producer sarama.SyncProducer, config DLQConfig, logger *slog.Logger, processorID string) *DLQPublisher {
	if processorID == "" {
		processorID = uuid.New().String()
	}
	return &DLQPublisher{
		producer:    producer,
		config:      config,
		logger:      logger,
		processorID: processorID,
	}
}

// Publish publishes a rejected batch to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, batch *edge.ConsumedBatch, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrSourceClosed
	}

	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := p.topic(batch.Metadata)
	batchID := validator.BatchID(batch.Metadata)

	event, err := p.newEvent(batch, batchID, reason)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Key:   sarama.StringEncoder(batchID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_type"), Value: []byte(RejectedEventType)},
			{Key: []byte("ce_id"), Value: []byte(event.ID())},
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"batch_id", batchID,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published batch to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"batch_id", batchID,
		"edges", batch.Columns.Len(),
		"reason", reason,
	)

	return nil
}

func (p *DLQPublisher) topic(meta edge.SourceMetadata) string {
	if meta.Topic != "" {
		return meta.Topic + p.config.TopicSuffix
	}
	return p.config.DefaultTopic + p.config.TopicSuffix
}

func (p *DLQPublisher) newEvent(batch *edge.ConsumedBatch, batchID, reason string) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(uuid.New().String())
	event.SetType(RejectedEventType)
	event.SetSource("edgeshuffle/" + p.processorID)
	event.SetSubject(batchID)
	event.SetTime(time.Now().UTC())

	record := DLQRecord{
		Batch:            batch.Columns,
		OriginalSource:   batch.Metadata.Source,
		OriginalTopic:    batch.Metadata.Topic,
		OriginalPart:     batch.Metadata.Partition,
		OriginalOffset:   batch.Metadata.Offset,
		OriginalEventID:  batch.Metadata.EventID,
		FailureReason:    reason,
		FailureTimestamp: event.Time(),
		ProcessorID:      p.processorID,
	}
	if err := event.SetData(cloudevents.ApplicationJSON, record); err != nil {
		return event, fmt.Errorf("failed to set DLQ event data: %w", err)
	}
	return event, nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
