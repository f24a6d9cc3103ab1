package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderConfirmed   EventType = "order.confirmed"
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
)

// Event is an immutable fact published on the in-process bus.
type Event interface {
	EventType() EventType
	// AggregateOrderID ties every event to the order it concerns.
	AggregateOrderID() string
	OccurredAt() time.Time
}

type OrderCreated struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewOrderCreated(orderID, userID string, total decimal.Decimal) OrderCreated {
	return OrderCreated{OrderID: orderID, UserID: userID, Total: total, CreatedAt: time.Now().UTC()}
}

func (OrderCreated) EventType() EventType       { return EventOrderCreated }
func (e OrderCreated) AggregateOrderID() string { return e.OrderID }
func (e OrderCreated) OccurredAt() time.Time    { return e.CreatedAt }

type OrderConfirmed struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewOrderConfirmed(orderID, userID string) OrderConfirmed {
	return OrderConfirmed{OrderID: orderID, UserID: userID, CreatedAt: time.Now().UTC()}
}

func (OrderConfirmed) EventType() EventType       { return EventOrderConfirmed }
func (e OrderConfirmed) AggregateOrderID() string { return e.OrderID }
func (e OrderConfirmed) OccurredAt() time.Time    { return e.CreatedAt }

type PaymentSucceeded struct {
	PaymentID     string          `json:"payment_id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewPaymentSucceeded(p *Payment) PaymentSucceeded {
	return PaymentSucceeded{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		CreatedAt:     time.Now().UTC(),
	}
}

func (PaymentSucceeded) EventType() EventType       { return EventPaymentSucceeded }
func (e PaymentSucceeded) AggregateOrderID() string { return e.OrderID }
func (e PaymentSucceeded) OccurredAt() time.Time    { return e.CreatedAt }

type PaymentFailed struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewPaymentFailed(p *Payment) PaymentFailed {
	return PaymentFailed{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Reason:    p.FailureReason,
		CreatedAt: time.Now().UTC(),
	}
}

func (PaymentFailed) EventType() EventType       { return EventPaymentFailed }
func (e PaymentFailed) AggregateOrderID() string { return e.OrderID }
func (e PaymentFailed) OccurredAt() time.Time    { return e.CreatedAt }
