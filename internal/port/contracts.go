package port

import (
	"context"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

// OrderReader is the read contract the payment module uses.
type OrderReader interface {
	FindOrder(ctx context.Context, orderID string) (domain.OrderView, error)
}

// OrderCommander is what the saga handlers are allowed to do to an order.
type OrderCommander interface {
	ConfirmOrder(ctx context.Context, orderID string) error
	CancelOrder(ctx context.Context, orderID, reason string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}
