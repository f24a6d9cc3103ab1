package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced            OrderStatus = "PLACED"
	OrderStatusPreparing         OrderStatus = "PREPARING"
	OrderStatusDeliveryScheduled OrderStatus = "DELIVERY_SCHEDULED"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery    OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:            {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:         {OrderStatusShipped, OrderStatusDeliveryScheduled, OrderStatusCancelled},
	OrderStatusDeliveryScheduled: {OrderStatusShipped, OrderStatusOutForDelivery},
	OrderStatusShipped:           {OrderStatusOutForDelivery, OrderStatusDeliveryScheduled},
	OrderStatusOutForDelivery:    {OrderStatusDelivered, OrderStatusDeliveryScheduled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusPreparing, OrderStatusDeliveryScheduled, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the lifecycle graph has an edge from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ShippingAddress struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

func (a ShippingAddress) Validate() error {
	required := []struct{ name, value string }{
		{"full name", a.FullName},
		{"address line 1", a.AddressLine1},
		{"city", a.City},
		{"postal code", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return Validationf("shipping address %s is required", f.name)
		}
	}
	return nil
}

// OrderItem keeps the catalog values captured at checkout; it is never re-synced.
type OrderItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	VendorID     string          `json:"vendor_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

func NewOrderItem(product Product, quantity int) OrderItem {
	var image string
	if len(product.Images) > 0 {
		image = product.Images[0]
	}
	return OrderItem{
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductImage: image,
		VendorID:     product.VendorID,
		Quantity:     quantity,
		UnitPrice:    product.Price,
		Subtotal:     product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

type Order struct {
	ID                    string
	UserID                string
	Items                 []OrderItem
	Total                 decimal.Decimal
	Status                OrderStatus
	ShippingAddress       ShippingAddress
	CancellationReason    string
	StatusNote            string
	EstimatedDeliveryDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           *time.Time
	ShippedAt             *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	Version               int // optimistic locking
}

// NewOrder builds a PLACED order; the total is computed here and never again.
func NewOrder(id, userID string, items []OrderItem, address ShippingAddress, now time.Time) *Order {
	order := &Order{
		ID:              id,
		UserID:          userID,
		Items:           items,
		Status:          OrderStatusPlaced,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Total = order.ItemsTotal()
	return order
}

func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

func (o *Order) IsPlaced() bool {
	return o.Status == OrderStatusPlaced
}

func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPlaced || o.Status == OrderStatusPreparing
}

func (o *Order) CanBeUpdatedByVendor() bool {
	return !o.Status.IsTerminal()
}

func (o *Order) HasVendor(vendorID string) bool {
	for _, item := range o.Items {
		if item.VendorID == vendorID {
			return true
		}
	}
	return false
}

func (o *Order) Confirm(now time.Time) error {
	if !o.IsPlaced() {
		return InvalidTransition(o.Status, OrderStatusPreparing)
	}
	o.Status = OrderStatusPreparing
	o.ConfirmedAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) Cancel(reason string, now time.Time) error {
	if !o.CanBeCancelled() {
		return InvalidTransition(o.Status, OrderStatusCancelled)
	}
	o.Status = OrderStatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Advance applies a vendor fulfillment step. Cancellation goes through Cancel
// so that callers cannot skip the stock release.
func (o *Order) Advance(next OrderStatus, note string, estimatedDelivery *time.Time, now time.Time) error {
	if next == OrderStatusCancelled || !o.Status.CanTransitionTo(next) {
		return InvalidTransition(o.Status, next)
	}
	if next == OrderStatusDeliveryScheduled {
		if estimatedDelivery == nil {
			return Validationf("estimated delivery date is required for %s status", OrderStatusDeliveryScheduled)
		}
		date := *estimatedDelivery
		o.EstimatedDeliveryDate = &date
	}

	o.Status = next
	o.StatusNote = note
	o.UpdatedAt = now

	switch next {
	case OrderStatusPreparing:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	}
	return nil
}

func (o *Order) View() OrderView {
	return OrderView{
		ID:     o.ID,
		UserID: o.UserID,
		Total:  o.Total,
		Status: o.Status,
	}
}

// OrderView is the read-only projection other modules see.
type OrderView struct {
	ID     string
	UserID string
	Total  decimal.Decimal
	Status OrderStatus
}

type OrderFilter struct {
	UserID   string
	VendorID string
	Status   OrderStatus // empty means any
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Page struct {
	Offset int
	Limit  int
}

func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}
