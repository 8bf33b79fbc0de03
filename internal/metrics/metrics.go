package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed metrics
	MetricMessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_messages_processed_total",
		Help: "Total number of host messages handled, by indexer and outcome",
	}, []string{"indexer", "outcome"})
	MetricMessagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wasmscope_messages_skipped_total",
		Help: "Messages at or before the checkpoint that were skipped",
	})
	MetricLastProcessedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wasmscope_last_processed_height",
		Help: "Block height of the last processed message",
	})

	// Pipeline metrics
	MetricDecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_decode_failures_total",
		Help: "Total number of transaction logs that could not be decoded",
	}, []string{"indexer"})
	MetricCorrelationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_correlation_rejects_total",
		Help: "Messages dropped by the correlator, by reason",
	}, []string{"reason"})
	MetricTransitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_transitions_applied_total",
		Help: "State transitions applied by the reconciler",
	}, []string{"action"})

	// Bootstrap metrics
	MetricBootstrapQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_bootstrap_queries_total",
		Help: "Chain queries issued to seed entities on first reference",
	}, []string{"kind", "result"})

	// Error metrics
	MetricProcessingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmscope_processing_errors_total",
		Help: "Total number of processing errors",
	}, []string{"component", "error_type"})

	// Kafka metrics
	MetricKafkaLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wasmscope_kafka_lag",
		Help: "Current lag (in messages) for each Kafka topic/partition",
	}, []string{"topic", "partition"})

	MetricProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wasmscope_processing_duration_seconds",
			Help:    "Time spent handling one message per indexer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"indexer"},
	)
)

// RecordMessage records the outcome of one handler run.
func RecordMessage(indexer, outcome string) {
	MetricMessagesProcessed.WithLabelValues(indexer, outcome).Inc()
}

func RecordSkipped() {
	MetricMessagesSkipped.Inc()
}

func UpdateHeight(height uint64) {
	MetricLastProcessedHeight.Set(float64(height))
}

func RecordDecodeFailure(indexer string) {
	MetricDecodeFailures.WithLabelValues(indexer).Inc()
}

// RecordReject records a message the correlator refused.
func RecordReject(reason string) {
	MetricCorrelationRejects.WithLabelValues(reason).Inc()
}

func RecordTransition(action string) {
	MetricTransitionsApplied.WithLabelValues(action).Inc()
}

// RecordBootstrapQuery records a bootstrap chain query and whether it
// succeeded.
func RecordBootstrapQuery(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MetricBootstrapQueries.WithLabelValues(kind, result).Inc()
}

// RecordProcessingError records a processing error
func RecordProcessingError(component, errorType string) {
	MetricProcessingErrors.WithLabelValues(component, errorType).Inc()
}

// RecordKafkaLag records the current lag for a topic/partition
func RecordKafkaLag(topic string, partition int, lag int64) {
	MetricKafkaLag.WithLabelValues(topic, fmt.Sprintf("%d", partition)).
		Set(float64(lag))
}

func RecordProcessingDuration(indexer string, seconds float64) {
	MetricProcessingDuration.WithLabelValues(indexer).Observe(seconds)
}
