package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
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

const DefaultPaymentSuccessRate = 0.9

var paymentTracer = otel.Tracer("payment-service")

// OutcomeDecider simulates the payment provider; true means the charge succeeded.
type OutcomeDecider func() bool

func RandomOutcome(successRate float64) OutcomeDecider {
	return func() bool { return rand.Float64() < successRate }
}

type InitiatePaymentRequest struct {
	UserID  string
	OrderID string
	Method  string // defaults to CARD
}

type ProcessPaymentRequest struct {
	UserID    string
	PaymentID string
	// ForceOutcome bypasses the decider when set.
	ForceOutcome *bool
}

type PaymentService struct {
	payments  port.PaymentRepository
	orders    port.OrderReader
	publisher port.EventPublisher
	decide    OutcomeDecider
	metrics   *metrics.Metrics
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewPaymentService uses RandomOutcome(DefaultPaymentSuccessRate) when decide is nil.
func NewPaymentService(
	payments port.PaymentRepository,
	orders port.OrderReader,
	publisher port.EventPublisher,
	decide OutcomeDecider,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PaymentService {
	if decide == nil {
		decide = RandomOutcome(DefaultPaymentSuccessRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:  payments,
		orders:    orders,
		publisher: publisher,
		decide:    decide,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func transactionID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// InitiatePayment creates the single payment of an order. Cash on delivery is
// settled immediately and publishes PaymentSucceeded before returning.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (payment *domain.Payment, err error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.InitiatePayment")
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("user.id", req.UserID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.Validationf("user id is required")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.Validationf("order id is required")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = domain.PaymentMethodCard
	}

	existing, err := s.payments.GetPaymentByOrder(ctx, req.OrderID)
	switch {
	case err == nil && existing != nil:
		return nil, domain.Conflictf("payment already initiated for order %s", req.OrderID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check existing payment: %w", err)
	}

	order, err := s.orders.FindOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != req.UserID {
		return nil, domain.Forbiddenf("order %s does not belong to current user", req.OrderID)
	}
	if order.Status != domain.OrderStatusPlaced {
		return nil, domain.Validationf("order %s is not in a valid state for payment: %s", req.OrderID, order.Status)
	}

	now := s.now()
	payment = &domain.Payment{
		ID:        s.newID(),
		OrderID:   order.ID,
		UserID:    req.UserID,
		Amount:    order.Total,
		Status:    domain.PaymentStatusPending,
		Method:    method,
		CreatedAt: now,
		UpdatedAt: now,
	}

	cod := method == domain.PaymentMethodCashOnDelivery
	if cod {
		if err = payment.MarkSuccess(transactionID("COD"), now); err != nil {
			return nil, err
		}
	}

	if err = s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID))

	s.logger.Info("payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("method", payment.Method),
		zap.String("status", string(payment.Status)),
	)

	if cod {
		s.metrics.PaymentProcessed(string(payment.Status))
		s.publish(ctx, domain.NewPaymentSucceeded(payment))
	}
	return payment, nil
}

// ProcessPayment settles a PENDING payment exactly once and publishes the outcome.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (payment *domain.Payment, err error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.ProcessPayment")
	span.SetAttributes(attribute.String("payment.id", req.PaymentID), attribute.String("user.id", req.UserID))
	defer func() { endSpan(span, err) }()

	payment, err = s.GetPayment(ctx, req.UserID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsPending() {
		return nil, domain.Conflictf("payment %s has already been processed", payment.ID)
	}

	success := s.decide()
	if req.ForceOutcome != nil {
		success = *req.ForceOutcome
	}

	now := s.now()
	var evt domain.Event
	if success {
		err = payment.MarkSuccess(transactionID("TXN"), now)
		evt = domain.NewPaymentSucceeded(payment)
	} else {
		err = payment.MarkFailed(domain.PaymentDeclinedReason, now)
		evt = domain.NewPaymentFailed(payment)
	}
	if err != nil {
		return nil, err
	}

	if err = s.payments.UpdatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("save processed payment: %w", err)
	}

	s.metrics.PaymentProcessed(string(payment.Status))
	s.logger.Info("payment processed",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("status", string(payment.Status)),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("failure_reason", payment.FailureReason),
	)

	s.publish(ctx, evt)
	return payment, nil
}

// publish never fails the payment call; the payment is already persisted.
func (s *PaymentService) publish(ctx context.Context, evt domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("payment event handlers failed",
			zap.String("event_type", string(evt.EventType())),
			zap.String("order_id", evt.AggregateOrderID()),
			zap.Error(err),
		)
	}
}

func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, domain.NotFound("payment", paymentID)
	}
	return payment, nil
}

func (s *PaymentService) GetPaymentByOrder(ctx context.Context, userID, orderID string) (*domain.Payment, error) {
	payment, err := s.payments.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, domain.NotFound("payment for order", orderID)
	}
	return payment, nil
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID string, page domain.Page) ([]*domain.Payment, error) {
	return s.payments.ListPaymentsByUser(ctx, userID, page.Normalize())
}
