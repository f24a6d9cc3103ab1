package port

import (
	"context"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a new order
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves an order by ID, NotFound if missing
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrder saves a mutated order with version check for optimistic locking
	UpdateOrder(ctx context.Context, order *domain.Order) error

	// ListOrders returns orders matching the filter, newest first
	ListOrders(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]*domain.Order, error)
}

type PaymentRepository interface {
	// CreatePayment persists a new payment; a second payment for the same order is a Conflict
	CreatePayment(ctx context.Context, payment *domain.Payment) error

	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error)

	UpdatePayment(ctx context.Context, payment *domain.Payment) error

	ListPaymentsByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Payment, error)
}

type CatalogRepository interface {
	// FindProduct returns the catalog projection of a product, NotFound if missing
	FindProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type CatalogWriter interface {
	// SaveProduct upserts a catalog product and its available stock
	SaveProduct(ctx context.Context, product domain.Product) error
}
