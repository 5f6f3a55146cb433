// Package notify delivers user notifications drained from the outbox.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// Message is what consumers of the notification topic receive.
type Message struct {
	UserID string            `json:"userId"`
	Type   string            `json:"type"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt time.Time         `json:"sentAt"`
}

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notifications keyed by user id, so one user's messages
// stay in order on a single partition.
type Kafka struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Kafka{writer: w, timeout: 5 * time.Second, now: time.Now}
}

func (k *Kafka) Notify(ctx context.Context, userID, eventType string, data map[string]string) error {
	b, err := json.Marshal(Message{UserID: userID, Type: eventType, Data: data, SentAt: k.now().UTC()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: b})
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
