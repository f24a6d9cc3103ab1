package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

var (
	_ port.StockRepository       = (*MemoryStore)(nil)
	_ port.IdempotencyRepository = (*MemoryStore)(nil)
	_ port.OrderRepository       = (*MemoryStore)(nil)
	_ port.PaymentRepository     = (*MemoryStore)(nil)
	_ port.CatalogRepository     = (*MemoryStore)(nil)
	_ port.CatalogWriter         = (*MemoryStore)(nil)
)

// MemoryStore implements every repository port in process. Stock for each
// product is guarded by its own mutex so products never contend.
type MemoryStore struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	inventory   map[string]*stockCell
	orders      map[string]domain.Order
	payments    map[string]domain.Payment
	idempotency map[string]time.Time
	now         func() time.Time
}

type stockCell struct {
	mu        sync.Mutex
	available int
	version   int
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]domain.Product),
		inventory:   make(map[string]*stockCell),
		orders:      make(map[string]domain.Order),
		payments:    make(map[string]domain.Payment),
		idempotency: make(map[string]time.Time),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) cell(productID string) (*stockCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.inventory[productID]
	return c, ok
}

func (s *MemoryStore) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	c, ok := s.cell(productID)
	if !ok {
		return false, domain.NotFound("inventory", productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available < quantity {
		return false, nil
	}
	c.available -= quantity
	c.version++
	c.updatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) IncrementStock(ctx context.Context, productID string, quantity int) error {
	c, ok := s.cell(productID)
	if !ok {
		return domain.NotFound("inventory", productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.available += quantity
	c.version++
	c.updatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetStock(ctx context.Context, productID string) (*domain.Inventory, error) {
	c, ok := s.cell(productID)
	if !ok {
		return nil, domain.NotFound("inventory", productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &domain.Inventory{ProductID: productID, Available: c.available, Version: c.version, UpdatedAt: c.updatedAt}, nil
}

func (s *MemoryStore) SetStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	c, ok := s.inventory[productID]
	if !ok {
		c = &stockCell{}
		s.inventory[productID] = c
	}
	s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = quantity
	c.version++
	c.updatedAt = s.now()
	return nil
}

// SetIdempotency keeps keys for the same 24h window the Redis adapter uses.
func (s *MemoryStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if claimed, ok := s.idempotency[key]; ok && now.Sub(claimed) < idempotencyKeyTTL {
		return false, nil
	}
	s.idempotency[key] = now
	return true, nil
}

func (s *MemoryStore) ReleaseIdempotency(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
	return nil
}

func (s *MemoryStore) SaveProduct(ctx context.Context, p domain.Product) error {
	p.Images = append([]string(nil), p.Images...)
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
	return s.SetStock(ctx, p.ID, p.Stock)
}

func (s *MemoryStore) FindProduct(ctx context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	p, ok := s.products[productID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("product", productID)
	}
	p.Images = append([]string(nil), p.Images...)
	if inv, err := s.GetStock(ctx, productID); err == nil {
		p.Stock = inv.Available
	}
	return &p, nil
}

func cloneOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return domain.Conflictf("order %s already exists", order.ID)
	}
	order.Version = 1
	s.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order", orderID)
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return domain.NotFound("order", order.ID)
	}
	if stored.Version != order.Version {
		return ErrOptimisticLock
	}
	order.Version++
	s.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]*domain.Order, error) {
	s.mu.RLock()
	var matched []*domain.Order
	for _, o := range s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.VendorID != "" && !o.HasVendor(filter.VendorID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneOrder(o))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.payments {
		if existing.OrderID == p.OrderID {
			return domain.Conflictf("payment already initiated for order %s", p.OrderID)
		}
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, domain.NotFound("payment", paymentID)
	}
	return &p, nil
}

func (s *MemoryStore) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, domain.NotFound("payment for order", orderID)
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.payments[p.ID]
	if !ok {
		return domain.NotFound("payment", p.ID)
	}
	if !stored.IsPending() {
		return domain.Conflictf("payment %s has already been processed", p.ID)
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *MemoryStore) ListPaymentsByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Payment, error) {
	s.mu.RLock()
	var matched []*domain.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			p := p
			matched = append(matched, &p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page), nil
}
