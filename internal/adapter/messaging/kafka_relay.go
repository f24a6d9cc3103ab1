package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

// MessageWriter is the subset of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value written for every domain event. Envelopes are
// written in causal order: an event is relayed before the events its
// handlers publish.
type Envelope struct {
	Type       domain.EventType `json:"type"`
	OrderID    string           `json:"order_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    domain.Event     `json:"payload"`
}

// KafkaRelay mirrors bus events onto a Kafka topic for outside consumers. It
// is best effort: failures are logged and never reach the saga.
type KafkaRelay struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaWriter builds an async writer, so publishing never waits on brokers.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to deliver events to kafka",
					zap.String("topic", topic),
					zap.Int("messages", len(messages)),
					zap.Error(err),
				)
			}
		},
	}
}

func NewKafkaRelay(writer MessageWriter, logger *zap.Logger) *KafkaRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaRelay{writer: writer, logger: logger}
}

func (r *KafkaRelay) message(ctx context.Context, evt domain.Event) (kafka.Message, error) {
	value, err := json.Marshal(Envelope{
		Type:       evt.EventType(),
		OrderID:    evt.AggregateOrderID(),
		OccurredAt: evt.OccurredAt(),
		Payload:    evt,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{{Key: "event_type", Value: []byte(evt.EventType())}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Key:     []byte(evt.AggregateOrderID()),
		Value:   value,
		Headers: headers,
		Time:    evt.OccurredAt(),
	}, nil
}

// Handle has the event.Handler signature and always returns nil.
func (r *KafkaRelay) Handle(ctx context.Context, evt domain.Event) error {
	msg, err := r.message(ctx, evt)
	if err != nil {
		r.logger.Error("failed to encode event for kafka", zap.Error(err))
		return nil
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.logger.Warn("failed to relay event to kafka",
			zap.String("event_type", string(evt.EventType())),
			zap.String("order_id", evt.AggregateOrderID()),
			zap.Error(err),
		)
	}
	return nil
}

func (r *KafkaRelay) Close() error {
	return r.writer.Close()
}
