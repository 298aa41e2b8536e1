package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes ledger events as JSON onto a Kafka topic, keyed by
// destination principal so one principal's events stay ordered.
type KafkaNotifier struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaWriter builds the writer used by KafkaNotifier.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaNotifier wraps writer.
func NewKafkaNotifier(writer *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, timeout: 5 * time.Second}
}

func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("notification: encode %s: %w", message.Kind, err)
	}
	// The request context may already be done by the time a post-commit event
	// is sent, so delivery gets its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Destination),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("notification: publish %s: %w", message.Kind, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
