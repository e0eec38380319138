package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/runcoach/internal/domain"
)

// AdviceGeneratedEvent is the event type header on advice messages.
const AdviceGeneratedEvent = "advice.generated"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AdviceMessage is the JSON body published for each delivered advice.
type AdviceMessage struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// KafkaNotifier publishes advice to a topic for downstream consumers.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaNotifier constructs a notifier writing to topic on brokers. The
// writer connects lazily on the first publish.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	return newKafkaNotifier(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}, topic, logger)
}

func newKafkaNotifier(writer messageWriter, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{
		writer: writer,
		topic:  topic,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the notifier.
func (n *KafkaNotifier) Name() string { return "kafka" }

// Notify publishes one advice.generated message.
func (n *KafkaNotifier) Notify(ctx context.Context, subject, body string) bool {
	start := time.Now()
	payload, err := json.Marshal(AdviceMessage{Subject: subject, Body: body, SentAt: n.now()})
	if err != nil {
		n.logger.Error("advice not published", "error", err)
		observeDelivery(n.Name(), start, false)
		return false
	}

	msg := kafka.Message{
		Key:   []byte(uuid.NewString()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(AdviceGeneratedEvent)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Error("advice not published", "topic", n.topic, "error", fmt.Errorf("%w: %w", domain.ErrDelivery, err))
		observeDelivery(n.Name(), start, false)
		return false
	}
	observeDelivery(n.Name(), start, true)
	return true
}

// Close flushes and releases the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
