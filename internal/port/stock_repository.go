package port

import (
	"context"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type StockRepository interface {
	// DecrementStock atomically decreases available stock, returns false if insufficient.
	// Unknown products yield a domain NotFound error.
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock restores stock (compensation for a reservation)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// GetStock returns the ledger row for a product
	GetStock(ctx context.Context, productID string) (*domain.Inventory, error)

	// SetStock creates or overwrites the available quantity of a product
	SetStock(ctx context.Context, productID string, quantity int) error
}

type IdempotencyRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a claimed key; unknown keys are not an error
	ReleaseIdempotency(ctx context.Context, key string) error
}
