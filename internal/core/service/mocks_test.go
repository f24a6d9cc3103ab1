package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type mockStockRepo struct {
	mu    sync.Mutex
	stock map[string]int
	// failIncrement makes IncrementStock fail for the listed products
	failIncrement map[string]bool
	releases      []string
}

func newMockStockRepo(stock map[string]int) *mockStockRepo {
	return &mockStockRepo{stock: stock, failIncrement: make(map[string]bool)}
}

func (m *mockStockRepo) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.stock[productID]
	if !ok {
		return false, domain.NotFound("inventory", productID)
	}
	if current < quantity {
		return false, nil
	}
	m.stock[productID] = current - quantity
	return true, nil
}

func (m *mockStockRepo) IncrementStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failIncrement[productID] {
		return errors.New("ledger unavailable")
	}
	m.stock[productID] += quantity
	m.releases = append(m.releases, productID)
	return nil
}

func (m *mockStockRepo) GetStock(ctx context.Context, productID string) (*domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.stock[productID]
	if !ok {
		return nil, domain.NotFound("inventory", productID)
	}
	return &domain.Inventory{ProductID: productID, Available: current}, nil
}

func (m *mockStockRepo) SetStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = quantity
	return nil
}

func (m *mockStockRepo) available(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

type mockIdempotencyRepo struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{keys: make(map[string]bool)}
}

func (m *mockIdempotencyRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	return nil
}

func (m *mockIdempotencyRepo) claimed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

type mockCatalog struct {
	products map[string]*domain.Product
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	c := &mockCatalog{products: make(map[string]*domain.Product)}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

func (m *mockCatalog) FindProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.NotFound("product", productID)
	}
	cp := *p
	return &cp, nil
}

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]domain.Order)}
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	order.Version = 1
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order", orderID)
	}
	return &o, nil
}

func (m *mockOrderRepo) UpdateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[order.ID]
	if !ok {
		return domain.NotFound("order", order.ID)
	}
	if stored.Version != order.Version {
		return domain.Conflictf("order %s was modified concurrently", order.ID)
	}
	order.Version++
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepo) ListOrders(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Order
	for _, o := range m.orders {
		o := o
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.VendorID != "" && !o.HasVendor(filter.VendorID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, &o)
	}
	return out, nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[string]domain.Payment)}
}

func (m *mockPaymentRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.OrderID == payment.OrderID {
			return domain.Conflictf("payment already exists for order %s", payment.OrderID)
		}
	}
	m.payments[payment.ID] = *payment
	return nil
}

func (m *mockPaymentRepo) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.NotFound("payment", paymentID)
	}
	return &p, nil
}

func (m *mockPaymentRepo) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, domain.NotFound("payment for order", orderID)
}

func (m *mockPaymentRepo) UpdatePayment(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[payment.ID]; !ok {
		return domain.NotFound("payment", payment.ID)
	}
	m.payments[payment.ID] = *payment
	return nil
}

func (m *mockPaymentRepo) ListPaymentsByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Payment
	for _, p := range m.payments {
		p := p
		if p.UserID == userID {
			out = append(out, &p)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingPublisher) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func approvedProduct(id, name, vendorID, price string, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     name,
		Category: "general",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		VendorID: vendorID,
		Status:   domain.ProductStatusApproved,
		Images:   []string{"https://img.example.com/" + id + ".png"},
	}
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:     "Ada Lovelace",
		AddressLine1: "12 Analytical St",
		City:         "London",
		PostalCode:   "N1 9GU",
		Country:      "UK",
	}
}
