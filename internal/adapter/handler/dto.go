package handler

import (
	"time"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type ItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequestDTO struct {
	RequestID       string                 `json:"request_id,omitempty"`
	Items           []ItemRequestDTO       `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason,omitempty"`
}

type UpdateStatusRequestDTO struct {
	Status                string     `json:"status"`
	Note                  string     `json:"note,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
}

type InitiatePaymentRequestDTO struct {
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type ProcessPaymentRequestDTO struct {
	SimulateSuccess *bool `json:"simulate_success,omitempty"`
}

type OrderItemDTO struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
	VendorID     string `json:"vendor_id"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Subtotal     string `json:"subtotal"`
}

type OrderDTO struct {
	ID                    string                 `json:"id"`
	UserID                string                 `json:"user_id"`
	Items                 []OrderItemDTO         `json:"items"`
	Total                 string                 `json:"total"`
	Status                string                 `json:"status"`
	ShippingAddress       domain.ShippingAddress `json:"shipping_address"`
	CancellationReason    string                 `json:"cancellation_reason,omitempty"`
	StatusNote            string                 `json:"status_note,omitempty"`
	EstimatedDeliveryDate *time.Time             `json:"estimated_delivery_date,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	ConfirmedAt           *time.Time             `json:"confirmed_at,omitempty"`
	ShippedAt             *time.Time             `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time             `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time             `json:"cancelled_at,omitempty"`
}

type PaymentDTO struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	TransactionID string     `json:"transaction_id,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			VendorID:     it.VendorID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice.StringFixed(2),
			Subtotal:     it.Subtotal.StringFixed(2),
		})
	}
	return OrderDTO{
		ID:                    o.ID,
		UserID:                o.UserID,
		Items:                 items,
		Total:                 o.Total.StringFixed(2),
		Status:                o.Status.String(),
		ShippingAddress:       o.ShippingAddress,
		CancellationReason:    o.CancellationReason,
		StatusNote:            o.StatusNote,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
		ConfirmedAt:           o.ConfirmedAt,
		ShippedAt:             o.ShippedAt,
		DeliveredAt:           o.DeliveredAt,
		CancelledAt:           o.CancelledAt,
	}
}

func toOrderDTOs(orders []*domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	return out
}

func toPaymentDTO(p *domain.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		PaymentMethod: p.Method,
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		ProcessedAt:   p.ProcessedAt,
	}
}

func toPaymentDTOs(payments []*domain.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	return out
}
