package observability

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Source metrics
	MessagesConsumed   *prometheus.CounterVec
	DecodeErrors       *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec
	BatchesIngested    *prometheus.CounterVec

	// Edge list metrics
	EdgesAppended       *prometheus.CounterVec
	ChunksAllocated     *prometheus.CounterVec
	AppendDuration      *prometheus.HistogramVec
	ConsolidateDuration *prometheus.HistogramVec
	ShuffleDuration     *prometheus.HistogramVec
	LocalEdges          *prometheus.GaugeVec
	BuildDuration       prometheus.Histogram

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Source metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of edge batch messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		DecodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_decode_errors_total",
				Help: "Total number of Kafka messages that were not decodable edge batches",
			},
			[]string{"topic"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),
		BatchesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_batches_ingested_total",
				Help: "Total number of edge batches handled by ingest workers",
			},
			[]string{"source", "status"},
		),

		// Edge list metrics
		EdgesAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelist_edges_appended_total",
				Help: "Total number of edges appended to per-device edge lists",
			},
			[]string{"rank"},
		),
		ChunksAllocated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelist_chunks_allocated_total",
				Help: "Total number of chunks allocated by per-device edge lists",
			},
			[]string{"rank"},
		),
		AppendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgelist_append_duration_seconds",
				Help:    "Duration of append calls including the stream drain",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"rank"},
		),
		ConsolidateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgelist_consolidate_duration_seconds",
				Help:    "Duration of chunk consolidation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rank"},
		),
		ShuffleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgelist_shuffle_duration_seconds",
				Help:    "Duration of the collective shuffle on one device",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rank"},
		),
		LocalEdges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgelist_local_edges",
				Help: "Number of edges owned by the device after the shuffle",
			},
			[]string{"rank"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgelist_build_duration_seconds",
				Help:    "Duration of finalize, consolidate and shuffle across all devices",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),

		// Storage metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of partition files written to storage",
			},
			[]string{"rank", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "format"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of partition files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"rank", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncDecodeErrors increments the undecodable message counter.
func (m *Metrics) IncDecodeErrors(topic string) {
	m.DecodeErrors.WithLabelValues(topic).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncBatchesIngested increments the ingested batch counter.
func (m *Metrics) IncBatchesIngested(source string, status string) {
	m.BatchesIngested.WithLabelValues(source, status).Inc()
}

// AddEdgesAppended adds count to the appended edges counter.
func (m *Metrics) AddEdgesAppended(rank int, count int) {
	m.EdgesAppended.WithLabelValues(strconv.Itoa(rank)).Add(float64(count))
}

// IncChunksAllocated increments the allocated chunk counter.
func (m *Metrics) IncChunksAllocated(rank int) {
	m.ChunksAllocated.WithLabelValues(strconv.Itoa(rank)).Inc()
}

// ObserveAppendDuration observes append duration.
func (m *Metrics) ObserveAppendDuration(rank int, duration float64) {
	m.AppendDuration.WithLabelValues(strconv.Itoa(rank)).Observe(duration)
}

// ObserveConsolidateDuration observes consolidation duration.
func (m *Metrics) ObserveConsolidateDuration(rank int, duration float64) {
	m.ConsolidateDuration.WithLabelValues(strconv.Itoa(rank)).Observe(duration)
}

// ObserveShuffleDuration observes shuffle duration.
func (m *Metrics) ObserveShuffleDuration(rank int, duration float64) {
	m.ShuffleDuration.WithLabelValues(strconv.Itoa(rank)).Observe(duration)
}

// SetLocalEdges sets the locally owned edge gauge.
func (m *Metrics) SetLocalEdges(rank int, count float64) {
	m.LocalEdges.WithLabelValues(strconv.Itoa(rank)).Set(count)
}

// ObserveBuildDuration observes the fleet-wide build duration.
func (m *Metrics) ObserveBuildDuration(duration float64) {
	m.BuildDuration.Observe(duration)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(rank int, format string, status string) {
	m.FilesWritten.WithLabelValues(strconv.Itoa(rank), format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(rank int, format string, size float64) {
	m.FileSize.WithLabelValues(strconv.Itoa(rank), format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, format string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend, format).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
