// Package event provides the synchronous in-process bus the saga runs on.
//
// Publish runs every handler subscribed to the event type, in subscription
// order, on the caller's goroutine, and returns only after all of them have
// finished. Nothing is queued, persisted or retried.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type Handler func(ctx context.Context, evt domain.Event) error

// FailureRecorder receives one call per failed handler.
type FailureRecorder interface {
	EventHandlerFailed(eventType string)
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]namedHandler
	all      []namedHandler
	logger   *zap.Logger
	failures FailureRecorder
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewBus(logger *zap.Logger, failures FailureRecorder) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[domain.EventType][]namedHandler),
		logger:   logger,
		failures: failures,
	}
}

func (b *Bus) Subscribe(eventType domain.EventType, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, fn: fn})
}

// SubscribeAll registers fn for every event type. These handlers run before
// the type-specific ones, so an event reaches them ahead of any event its own
// handlers publish.
func (b *Bus) SubscribeAll(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, namedHandler{name: name, fn: fn})
}

// Publish never stops at the first failing handler; all failures are joined.
// State changes made by earlier handlers are not undone.
func (b *Bus) Publish(ctx context.Context, evt domain.Event) error {
	b.mu.RLock()
	handlers := make([]namedHandler, 0, len(b.handlers[evt.EventType()])+len(b.all))
	handlers = append(handlers, b.all...)
	handlers = append(handlers, b.handlers[evt.EventType()]...)
	b.mu.RUnlock()

	b.logger.Info("publishing domain event",
		zap.String("event_type", string(evt.EventType())),
		zap.String("order_id", evt.AggregateOrderID()),
		zap.Int("handlers", len(handlers)),
	)

	var errs []error
	for _, h := range handlers {
		if err := h.fn(ctx, evt); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", string(evt.EventType())),
				zap.String("handler", h.name),
				zap.String("order_id", evt.AggregateOrderID()),
				zap.Error(err),
			)
			if b.failures != nil {
				b.failures.EventHandlerFailed(string(evt.EventType()))
			}
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
