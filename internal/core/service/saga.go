package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/core/event"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

const paymentFailedReasonPrefix = "Payment failed: "

// RegisterSagaHandlers subscribes the order module to payment outcomes.
// An event that finds the order in a state where the transition is no longer
// legal (for example PaymentFailed after the user cancelled) is logged and
// skipped; any other failure is returned to the bus.
func RegisterSagaHandlers(bus *event.Bus, orders port.OrderCommander, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bus.Subscribe(domain.EventPaymentSucceeded, "order.confirm_on_payment_succeeded",
		func(ctx context.Context, evt domain.Event) error {
			e, ok := evt.(domain.PaymentSucceeded)
			if !ok {
				return fmt.Errorf("unexpected payload %T for %s", evt, evt.EventType())
			}
			return skipStale(logger, evt, orders.ConfirmOrder(ctx, e.OrderID))
		})

	bus.Subscribe(domain.EventPaymentFailed, "order.cancel_on_payment_failed",
		func(ctx context.Context, evt domain.Event) error {
			e, ok := evt.(domain.PaymentFailed)
			if !ok {
				return fmt.Errorf("unexpected payload %T for %s", evt, evt.EventType())
			}
			return skipStale(logger, evt, orders.CancelOrder(ctx, e.OrderID, paymentFailedReasonPrefix+e.Reason))
		})
}

func skipStale(logger *zap.Logger, evt domain.Event, err error) error {
	if err == nil || !errors.Is(err, domain.ErrInvalidTransition) {
		return err
	}
	logger.Warn("ignoring stale payment event",
		zap.String("event_type", string(evt.EventType())),
		zap.String("order_id", evt.AggregateOrderID()),
		zap.Error(err),
	)
	return nil
}
