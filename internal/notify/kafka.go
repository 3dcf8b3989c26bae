package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes JSON events to a Kafka topic keyed by pair id.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// KafkaConfig holds Kafka notifier configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  *zap.Logger
}

// NewKafkaNotifier creates a synchronous Kafka producer.
func NewKafkaNotifier(cfg *KafkaConfig) (*KafkaNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}

	cfg.Logger.Info("kafka-notifier-created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return &KafkaNotifier{writer: w, topic: cfg.Topic, logger: cfg.Logger}, nil
}

// Notify publishes the event.
func (n *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Time:  e.Time,
	})
	if err != nil {
		EventErrorsTotal.WithLabelValues(string(e.Type)).Inc()
		return fmt.Errorf("write kafka message: %w", err)
	}

	EventsTotal.WithLabelValues(string(e.Type), "kafka").Inc()
	n.logger.Debug("kafka-event-published",
		zap.String("type", string(e.Type)),
		zap.String("key", e.Key()),
		zap.String("topic", n.topic))

	return nil
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
