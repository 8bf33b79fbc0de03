package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
)

// KafkaConfig selects the topic holding the host feed. The feed must live on
// a single partition to keep its order.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// Kafka reads messages from a topic. With a GroupID offsets are committed to
// the group; without one the reader starts at the first offset and Commit
// does nothing.
type Kafka struct {
	reader  *kafka.Reader
	grouped bool
	pending []kafka.Message
	logger  *zap.Logger
}

func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	readerCfg := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	}
	if cfg.GroupID == "" {
		readerCfg.Partition = 0
	}
	return &Kafka{
		reader:  kafka.NewReader(readerCfg),
		grouped: cfg.GroupID != "",
		logger:  logger,
	}, nil
}

func (k *Kafka) Next(ctx context.Context) (model.Message, error) {
	m, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("fetch failed: %w", err)
	}
	k.recordLag(ctx)
	k.pending = append(k.pending, m)

	var msg model.Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return model.Message{}, fmt.Errorf("partition %d offset %d: %w: %v", m.Partition, m.Offset, ErrMalformed, err)
	}
	return msg, nil
}

func (k *Kafka) Commit(ctx context.Context) error {
	if len(k.pending) == 0 {
		return nil
	}
	if !k.grouped {
		k.pending = k.pending[:0]
		return nil
	}
	if err := k.reader.CommitMessages(ctx, k.pending...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	k.pending = k.pending[:0]
	return nil
}

func (k *Kafka) Close() error {
	return k.reader.Close()
}

func (k *Kafka) recordLag(ctx context.Context) {
	topic := k.reader.Config().Topic
	if k.grouped {
		metrics.RecordKafkaLag(topic, 0, k.reader.Stats().Lag)
		return
	}
	lag, err := k.reader.ReadLag(ctx)
	if err != nil {
		k.logger.Debug("read lag failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	metrics.RecordKafkaLag(topic, 0, lag)
}
