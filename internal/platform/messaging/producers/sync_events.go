package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/restobook/sumup-sync/internal/config"
	"github.com/segmentio/kafka-go"
)

// SyncEventProducer publishes sync.completed events for downstream consumers
// (dashboard cache invalidation, reporting)
type SyncEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewSyncEventProducer creates the sync events producer and ensures the topic exists
func NewSyncEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*SyncEventProducer, error) {
	if cfg.SyncEventsTopic == "" {
		return nil, fmt.Errorf("kafka sync events topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for sync event producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.SyncEventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure sync events topic %s exists: %w", cfg.SyncEventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.SyncEventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Event delivery must not slow down sync runs
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write sync events asynchronously", "topic", cfg.SyncEventsTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote sync events asynchronously", "topic", cfg.SyncEventsTopic, "count", len(messages))
			}
		},
	}

	return &SyncEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.SyncEventsTopic,
	}, nil
}

func (p *SyncEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish sync event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish sync event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published sync event",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *SyncEventProducer) Close() error {
	p.logger.Info("Closing sync event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close sync event writer for topic %s: %w", p.topic, err)
	}
	return nil
}
