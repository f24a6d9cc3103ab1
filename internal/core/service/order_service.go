package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/metrics"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

const (
	defaultCancelReason = "No reason provided"
	userCancelReason    = "Cancelled by user"
	vendorCancelReason  = "Cancelled by vendor"
)

var ErrDuplicateRequest = &domain.Error{Kind: domain.KindConflict, Message: "duplicate request"}

var orderTracer = otel.Tracer("order-service")

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CreateOrderRequest struct {
	UserID string
	// RequestID is optional; when set a repeated checkout with the same id is rejected.
	RequestID       string
	Items           []ItemRequest
	ShippingAddress domain.ShippingAddress
}

type VendorStatusUpdate struct {
	VendorID              string
	OrderID               string
	Status                domain.OrderStatus
	Note                  string
	EstimatedDeliveryDate *time.Time
}

type OrderService struct {
	orders      port.OrderRepository
	catalog     port.CatalogRepository
	ledger      *InventoryLedger
	idempotency port.IdempotencyRepository
	publisher   port.EventPublisher
	metrics     *metrics.Metrics
	logger      *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewOrderService wires the order aggregate. idempotency may be nil, in which
// case request ids are ignored.
func NewOrderService(
	orders port.OrderRepository,
	catalog port.CatalogRepository,
	ledger *InventoryLedger,
	idempotency port.IdempotencyRepository,
	publisher port.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:      orders,
		catalog:     catalog,
		ledger:      ledger,
		idempotency: idempotency,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

func validateCreateOrder(req CreateOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Validationf("user id is required")
	}
	if len(req.Items) == 0 {
		return domain.Validationf("order must contain at least one item")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Validationf("item %d: product id is required", i)
		}
		if item.Quantity < 1 {
			return domain.Validationf("item %d: quantity must be at least 1", i)
		}
	}
	return req.ShippingAddress.Validate()
}

// CreateOrder reserves stock for every item in request order and persists a
// PLACED order. Any failure releases what this call reserved, including the
// request id claim, before returning.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (order *domain.Order, err error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.CreateOrder")
	span.SetAttributes(attribute.String("user.id", req.UserID), attribute.Int("order.items", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err = validateCreateOrder(req); err != nil {
		return nil, err
	}

	if req.RequestID != "" && s.idempotency != nil {
		key := fmt.Sprintf("order:%s:%s", req.UserID, req.RequestID)
		claimed, claimErr := s.idempotency.SetIdempotency(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !claimed {
			return nil, ErrDuplicateRequest
		}
		defer func() {
			if err != nil {
				s.releaseClaim(ctx, key)
			}
		}()
	}

	reserved := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		orderItem, err := s.reserveItem(ctx, item)
		if err != nil {
			s.releaseItems(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, orderItem)
	}

	order = domain.NewOrder(s.newID(), req.UserID, reserved, req.ShippingAddress, s.now())
	if err = s.orders.CreateOrder(ctx, order); err != nil {
		s.releaseItems(ctx, reserved)
		return nil, fmt.Errorf("save order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	s.metrics.OrderCreated()
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)

	s.publish(ctx, domain.NewOrderCreated(order.ID, order.UserID, order.Total))
	return order, nil
}

func (s *OrderService) reserveItem(ctx context.Context, item ItemRequest) (domain.OrderItem, error) {
	product, err := s.catalog.FindProduct(ctx, item.ProductID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if !product.IsApproved() {
		return domain.OrderItem{}, domain.Validationf("product is not available for purchase: %s", product.Name)
	}

	ok, err := s.ledger.Reserve(ctx, product.ID, item.Quantity)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if !ok {
		return domain.OrderItem{}, domain.InsufficientStock(product.Name)
	}
	return domain.NewOrderItem(*product, item.Quantity), nil
}

// releaseItems gives back stock in reverse reservation order. It keeps going
// after a failed release and only reports it, since the caller is already
// failing or has committed the cancellation.
func (s *OrderService) releaseItems(ctx context.Context, items []domain.OrderItem) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to release reserved stock",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// releaseClaim frees a checkout request id so a failed checkout can be retried.
func (s *OrderService) releaseClaim(ctx context.Context, key string) {
	if err := s.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("failed to release checkout request id", zap.String("key", key), zap.Error(err))
	}
}

func (s *OrderService) publish(ctx context.Context, evt domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("domain event handlers failed",
			zap.String("event_type", string(evt.EventType())),
			zap.String("order_id", evt.AggregateOrderID()),
			zap.Error(err),
		)
	}
}

// CancelOrder is the administrative and saga cancellation entry point.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (err error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.CancelOrder")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.cancel(ctx, order, reason, "system")
	return err
}

func (s *OrderService) CancelUserOrder(ctx context.Context, userID, orderID string) (order *domain.Order, err error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.CancelUserOrder")
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	order, err = s.GetUserOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, order, userCancelReason, "user")
}

// cancel persists the cancellation first so that a lost version race never
// releases stock twice.
func (s *OrderService) cancel(ctx context.Context, order *domain.Order, reason, initiator string) (*domain.Order, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}
	from := order.Status
	if err := order.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save cancelled order: %w", err)
	}

	s.metrics.OrderTransition(from.String(), order.Status.String())
	s.metrics.OrderCancelled(initiator)
	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("from_status", from.String()),
		zap.String("reason", reason),
		zap.String("initiator", initiator),
	)

	if err := s.releaseItems(ctx, order.Items); err != nil {
		return order, fmt.Errorf("release stock for cancelled order %s: %w", order.ID, err)
	}
	return order, nil
}

func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (err error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.ConfirmOrder")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	from := order.Status
	if err = order.Confirm(s.now()); err != nil {
		return err
	}
	if err = s.orders.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("save confirmed order: %w", err)
	}

	s.metrics.OrderTransition(from.String(), order.Status.String())
	s.logger.Info("order confirmed", zap.String("order_id", order.ID))

	s.publish(ctx, domain.NewOrderConfirmed(order.ID, order.UserID))
	return nil
}

// UpdateStatusByVendor advances fulfillment for a vendor that owns at least one
// item of the order. A CANCELLED target goes through the regular cancel path.
func (s *OrderService) UpdateStatusByVendor(ctx context.Context, upd VendorStatusUpdate) (order *domain.Order, err error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.UpdateStatusByVendor")
	span.SetAttributes(
		attribute.String("order.id", upd.OrderID),
		attribute.String("vendor.id", upd.VendorID),
		attribute.String("order.status", upd.Status.String()),
	)
	defer func() { endSpan(span, err) }()

	if !upd.Status.Valid() {
		return nil, domain.Validationf("invalid order status: %s", upd.Status)
	}

	order, err = s.orders.GetOrder(ctx, upd.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.HasVendor(upd.VendorID) {
		return nil, domain.Forbiddenf("vendor %s has no items in order %s", upd.VendorID, order.ID)
	}
	if !order.CanBeUpdatedByVendor() {
		return nil, domain.InvalidTransition(order.Status, upd.Status)
	}

	if upd.Status == domain.OrderStatusCancelled {
		reason := upd.Note
		if strings.TrimSpace(reason) == "" {
			reason = vendorCancelReason
		}
		return s.cancel(ctx, order, reason, "vendor")
	}

	from := order.Status
	if err = order.Advance(upd.Status, upd.Note, upd.EstimatedDeliveryDate, s.now()); err != nil {
		return nil, err
	}
	if err = s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save order status: %w", err)
	}

	s.metrics.OrderTransition(from.String(), order.Status.String())
	s.logger.Info("order status updated by vendor",
		zap.String("order_id", order.ID),
		zap.String("vendor_id", upd.VendorID),
		zap.String("from_status", from.String()),
		zap.String("to_status", order.Status.String()),
	)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// GetUserOrder hides orders of other users behind NotFound.
func (s *OrderService) GetUserOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.NotFound("order", orderID)
	}
	return order, nil
}

func (s *OrderService) GetVendorOrder(ctx context.Context, vendorID, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasVendor(vendorID) {
		return nil, domain.NotFound("order", orderID)
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string, page domain.Page) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx, domain.OrderFilter{UserID: userID}, page.Normalize())
}

// ListVendorOrders filters by status when status is non-empty.
func (s *OrderService) ListVendorOrders(ctx context.Context, vendorID string, status domain.OrderStatus, page domain.Page) ([]*domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validationf("invalid order status: %s", status)
	}
	return s.orders.ListOrders(ctx, domain.OrderFilter{VendorID: vendorID, Status: status}, page.Normalize())
}

// FindOrder implements port.OrderReader.
func (s *OrderService) FindOrder(ctx context.Context, orderID string) (domain.OrderView, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderView{}, err
	}
	return order.View(), nil
}
