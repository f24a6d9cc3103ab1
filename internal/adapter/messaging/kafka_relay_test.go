package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/core/event"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaRelay_ForwardsBusEvents(t *testing.T) {
	writer := &fakeWriter{}
	relay := NewKafkaRelay(writer, zaptest.NewLogger(t))
	bus := event.NewBus(zaptest.NewLogger(t), nil)
	bus.SubscribeAll("kafka.relay", relay.Handle)

	created := domain.NewOrderCreated("o1", "u1", decimal.RequireFromString("60.00"))
	require.NoError(t, bus.Publish(context.Background(), created))
	require.NoError(t, bus.Publish(context.Background(), domain.NewOrderConfirmed("o1", "u1")))

	require.Len(t, writer.messages, 2)
	msg := writer.messages[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.Equal(t, "order.created", headerValue(msg, "event_type"))

	var env struct {
		Type    string          `json:"type"`
		OrderID string          `json:"order_id"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "order.created", env.Type)
	assert.Equal(t, "o1", env.OrderID)

	var payload domain.OrderCreated
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.True(t, created.Total.Equal(payload.Total))
	assert.Equal(t, "u1", payload.UserID)

	assert.Equal(t, "order.confirmed", headerValue(writer.messages[1], "event_type"))
}

func TestKafkaRelay_CauseIsWrittenBeforeEffect(t *testing.T) {
	writer := &fakeWriter{}
	relay := NewKafkaRelay(writer, zaptest.NewLogger(t))
	bus := event.NewBus(zaptest.NewLogger(t), nil)
	bus.Subscribe(domain.EventPaymentSucceeded, "order.confirm", func(ctx context.Context, evt domain.Event) error {
		return bus.Publish(ctx, domain.NewOrderConfirmed(evt.AggregateOrderID(), "u1"))
	})
	bus.SubscribeAll("kafka.relay", relay.Handle)

	paid := domain.NewPaymentSucceeded(&domain.Payment{
		ID: "pay1", OrderID: "o1", UserID: "u1", Amount: decimal.RequireFromString("60.00"),
		Status: domain.PaymentStatusSuccess, TransactionID: "TXN-1234ABCD",
	})
	require.NoError(t, bus.Publish(context.Background(), paid))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, "payment.succeeded", headerValue(writer.messages[0], "event_type"))
	assert.Equal(t, "order.confirmed", headerValue(writer.messages[1], "event_type"))
}

func TestKafkaRelay_InjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	writer := &fakeWriter{}
	relay := NewKafkaRelay(writer, zaptest.NewLogger(t))

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, relay.Handle(ctx, domain.NewOrderConfirmed("o1", "u1")))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", headerValue(writer.messages[0], "traceparent"))
}

func TestKafkaRelay_WriteFailureDoesNotFailPublish(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	relay := NewKafkaRelay(writer, zaptest.NewLogger(t))
	bus := event.NewBus(zaptest.NewLogger(t), nil)
	bus.SubscribeAll("kafka.relay", relay.Handle)

	err := bus.Publish(context.Background(), domain.NewOrderConfirmed("o1", "u1"))
	assert.NoError(t, err)

	require.NoError(t, relay.Close())
	assert.True(t, writer.closed)
}
