// Package kafka implements the Kafka edge source and the DLQ publisher.
//
// Each Kafka message carries one CloudEvent whose data is a JSON edge batch.
// The consumer decodes it into edge columns and hands it to the ingest
// pipeline together with a commit callback that marks the message.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
	"github.com/jittakal/edgeshuffle/pkg/source"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ source.Source = (*SaramaConsumer)(nil)
)

// SourceName labels batches read from Kafka.
const SourceName = "kafka"

// DefaultEventType is the CloudEvent type carrying edge batches.
const DefaultEventType = "graph.edges.appended"

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	Topics              []string
	GroupID             string
	SecurityProtocol    string
	SASLMechanism       string
	SASLUsername        string
	SASLPassword        string
	AWSRegion           string
	AutoOffsetReset     string
	EnableAutoCommit    bool
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int

	// EventType is the accepted CloudEvent type, DefaultEventType when empty.
	EventType string
	// MaxEdges stops consumption once this many edges were read. Zero means unbounded.
	MaxEdges int64
	// IdleTimeoutMS stops consumption after this long without a message. Zero disables it.
	IdleTimeoutMS int
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncDecodeErrors(topic string)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveRebalanceDuration(groupID string, duration float64)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SaramaConsumer implements source.Source using a Sarama consumer group.
// It supports offset management, bounded runs and various security
// protocols including AWS MSK IAM.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	logger        *slog.Logger
	metrics       MetricsCollector
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumer creates a new Kafka consumer using Sarama library.
func NewSaramaConsumer(
	config ConsumerConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SaramaConsumer, error) {
	if len(config.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	saramaConfig := sarama.NewConfig()

	// Consumer configuration following AWS MSK best practices
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = config.EnableAutoCommit

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}

	// Appending a large batch may take a while; do not rebalance meanwhile.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"topics", config.Topics,
		"bootstrap_servers", config.BootstrapServers,
		"max_edges", config.MaxEdges,
		"idle_timeout_ms", config.IdleTimeoutMS,
	)

	return newConsumer(consumerGroup, config, logger, metrics), nil
}

func newConsumer(
	group sarama.ConsumerGroup,
	config ConsumerConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) *SaramaConsumer {
	if config.EventType == "" {
		config.EventType = DefaultEventType
	}
	return &SaramaConsumer{
		consumerGroup: group,
		config:        config,
		logger:        logger,
		metrics:       metrics,
	}
}

// Consume starts consuming messages and returns channels for batches and errors.
// The batch channel closes when ctx is cancelled, the edge budget is spent or
// the topic stays idle for longer than the idle timeout.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *edge.ConsumedBatch, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrSourceClosed
	}
	c.mu.RUnlock()

	runCtx, stop := context.WithCancel(ctx)

	batchChan := make(chan *edge.ConsumedBatch, 100)
	errorChan := make(chan error, 10)

	handler := &consumerGroupHandler{
		consumer:  c,
		batchChan: batchChan,
		errorChan: errorChan,
		ready:     make(chan bool),
		activity:  make(chan struct{}, 1),
		stop:      stop,
	}

	if c.config.IdleTimeoutMS > 0 {
		go handler.watchIdle(runCtx, time.Duration(c.config.IdleTimeoutMS)*time.Millisecond)
	}

	go func() {
		defer close(batchChan)
		defer close(errorChan)
		defer stop()

		for {
			if err := c.consumerGroup.Consume(runCtx, c.config.Topics, handler); err != nil {
				c.logger.Error("consumer group error", "error", err)
				select {
				case errorChan <- err:
				default:
				}
				return
			}
			if runCtx.Err() != nil {
				c.logger.Info("consumer stopped",
					"edges", handler.edges.Load(),
					"batches", handler.batches.Load(),
				)
				return
			}
		}
	}()

	select {
	case <-handler.ready:
		c.logger.Info("kafka consumer started and ready")
	case <-runCtx.Done():
	}
	return batchChan, errorChan, nil
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer       *SaramaConsumer
	batchChan      chan<- *edge.ConsumedBatch
	errorChan      chan<- error
	ready          chan bool
	readyOnce      sync.Once
	rebalanceStart time.Time
	activity       chan struct{}
	stop           context.CancelFunc
	edges          atomic.Int64
	batches        atomic.Int64
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if h.consumer.metrics != nil {
		h.consumer.metrics.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			h.consumer.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(
			h.consumer.config.GroupID,
			time.Since(h.rebalanceStart).Seconds(),
		)
	}

	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	logger := h.consumer.logger.With("topic", claim.Topic(), "partition", claim.Partition())
	logger.Info("started consuming partition", "initial_offset", claim.InitialOffset())

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			h.touch()

			batch, err := h.decode(message)
			if err != nil {
				logger.Error("failed to decode edge batch",
					"error", err,
					"offset", message.Offset,
				)
				if h.consumer.metrics != nil {
					h.consumer.metrics.IncDecodeErrors(message.Topic)
				}
				select {
				case h.errorChan <- fmt.Errorf("offset %d: %w", message.Offset, err):
				case <-session.Context().Done():
					return nil
				}
				continue
			}
			batch.CommitFunc = h.commitFunc(session, message)

			select {
			case h.batchChan <- batch:
				if h.consumer.metrics != nil {
					h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
				}
			case <-session.Context().Done():
				return nil
			}

			h.batches.Add(1)
			total := h.edges.Add(int64(batch.Columns.Len()))
			if limit := h.consumer.config.MaxEdges; limit > 0 && total >= limit {
				logger.Info("edge budget reached, stopping consumer", "edges", total)
				h.stop()
				return nil
			}

		case <-session.Context().Done():
			logger.Info("session context done, stopping partition consumption")
			return nil
		}
	}
}

// decode parses the CloudEvent envelope and its edge batch payload.
func (h *consumerGroupHandler) decode(message *sarama.ConsumerMessage) (*edge.ConsumedBatch, error) {
	var event cloudevents.Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cloud event: %w", err)
	}

	if want := h.consumer.config.EventType; event.Type() != want {
		return nil, fmt.Errorf("unexpected event type %q, want %q", event.Type(), want)
	}

	var cols edge.Columns
	if err := event.DataAs(&cols); err != nil {
		return nil, fmt.Errorf("failed to decode edge batch: %w", err)
	}

	timestamp := event.Time()
	if timestamp.IsZero() {
		timestamp = message.Timestamp
	}

	h.consumer.logger.Debug("decoded edge batch",
		"event_id", event.ID(),
		"source", event.Source(),
		"edges", cols.Len(),
		"attributes", cols.Attributes().String(),
	)

	return &edge.ConsumedBatch{
		Columns: cols,
		Metadata: edge.SourceMetadata{
			Source:    SourceName,
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			EventID:   event.ID(),
			Timestamp: timestamp,
		},
	}, nil
}

func (h *consumerGroupHandler) commitFunc(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) func() error {
	return func() error {
		start := time.Now()
		session.MarkMessage(message, "")
		if h.consumer.metrics != nil {
			h.consumer.metrics.ObserveCommitLatency(message.Topic, message.Partition, time.Since(start).Seconds())
			h.consumer.metrics.IncOffsetCommits(message.Topic, message.Partition, "success")
		}
		return nil
	}
}

func (h *consumerGroupHandler) touch() {
	select {
	case h.activity <- struct{}{}:
	default:
	}
}

// watchIdle stops consumption once no message arrived for timeout.
func (h *consumerGroupHandler) watchIdle(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.activity:
			timer.Reset(timeout)
		case <-timer.C:
			h.consumer.logger.Info("topic idle, stopping consumer", "idle_timeout", timeout)
			h.stop()
			return
		}
	}
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}

func configureSecurity(config *sarama.Config, kafkaConfig ConsumerConfig) error {
	switch kafkaConfig.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch kafkaConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword

		case "SCRAM-SHA-256", "SCRAM-SHA-512":
			mechanism, generator, err := scramMechanism(kafkaConfig.SASLMechanism)
			if err != nil {
				return err
			}
			config.Net.SASL.Mechanism = mechanism
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = generator

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth

			// OAuth ignores these, but Sarama validates they are set.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"

			region := kafkaConfig.AWSRegion
			if region == "" {
				region = "us-east-1"
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", kafkaConfig.SASLMechanism)
		}

		if kafkaConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}

	default:
		return fmt.Errorf("unsupported security protocol: %s", kafkaConfig.SecurityProtocol)
	}

	return nil
}
