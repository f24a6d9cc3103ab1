package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/metrics"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

var ledgerTracer = otel.Tracer("inventory-ledger")

// InventoryLedger owns per-product available quantities. Atomicity of a single
// reserve or release is delegated to the StockRepository.
type InventoryLedger struct {
	stock   port.StockRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewInventoryLedger(stock port.StockRepository, m *metrics.Metrics, logger *zap.Logger) *InventoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryLedger{stock: stock, metrics: m, logger: logger}
}

// Reserve returns false, with no change, when less than quantity is available.
func (l *InventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (ok bool, err error) {
	ctx, span := ledgerTracer.Start(ctx, "InventoryLedger.Reserve")
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	if quantity <= 0 {
		return false, domain.Validationf("quantity must be positive, got %d", quantity)
	}

	ok, err = l.stock.DecrementStock(ctx, productID, quantity)
	if err != nil {
		l.metrics.StockReservation("error")
		if errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("reserve stock for %s: %w", productID, err)
	}
	if !ok {
		l.metrics.StockReservation("insufficient")
		l.logger.Info("stock reservation rejected",
			zap.String("product_id", productID),
			zap.Int("quantity", quantity),
		)
		return false, nil
	}

	l.metrics.StockReservation("reserved")
	return true, nil
}

// Release does not check that quantity was previously reserved.
func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (err error) {
	ctx, span := ledgerTracer.Start(ctx, "InventoryLedger.Release")
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	if quantity <= 0 {
		return domain.Validationf("quantity must be positive, got %d", quantity)
	}
	if err = l.stock.IncrementStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("release stock for %s: %w", productID, err)
	}
	l.metrics.StockReleased()
	return nil
}

func (l *InventoryLedger) Available(ctx context.Context, productID string) (int, error) {
	inv, err := l.stock.GetStock(ctx, productID)
	if err != nil {
		return 0, err
	}
	return inv.Available, nil
}
