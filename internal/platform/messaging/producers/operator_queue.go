package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
)

type OperatorQueueProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewOperatorQueueProducer creates the producer for the operator review
// topic. Malformed statement lines land here with the raw payload attached
// so nothing a bank sent is silently dropped.
func NewOperatorQueueProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*OperatorQueueProducer, error) {
	if cfg.OperatorTopic == "" {
		return nil, fmt.Errorf("kafka operator topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for operator queue producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.OperatorTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure operator topic %s exists: %w", cfg.OperatorTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.OperatorTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &OperatorQueueProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.OperatorTopic,
	}, nil
}

// PublishMalformed routes one unparseable statement line to the operator
// review queue with the raw line preserved
func (p *OperatorQueueProducer) PublishMalformed(ctx context.Context, key string, rawLine []byte, reason string) error {
	payload := struct {
		Key       string `json:"key"`
		RawLine   string `json:"raw_line"`
		Reason    string `json:"reason"`
		Timestamp string `json:"timestamp"`
	}{
		Key:       key,
		RawLine:   string(rawLine),
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	jsonValue, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal operator queue message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish to operator queue",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish to operator queue %s: %w", p.topic, err)
	}

	p.logger.Info("Routed malformed statement line to operator queue",
		"topic", p.topic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *OperatorQueueProducer) Close() error {
	p.logger.Info("Closing operator queue Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close operator queue kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
