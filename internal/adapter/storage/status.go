package storage

import (
	"fmt"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

// Rows written before the lifecycle was renamed still carry the old names.
var legacyOrderStatuses = map[string]domain.OrderStatus{
	"CREATED":   domain.OrderStatusPlaced,
	"CONFIRMED": domain.OrderStatusPreparing,
}

// decodeOrderStatus is the only place legacy status names are understood.
func decodeOrderStatus(raw string) (domain.OrderStatus, error) {
	if status, ok := legacyOrderStatuses[raw]; ok {
		return status, nil
	}
	status := domain.OrderStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return status, nil
}

// legacyNameOf returns the old stored name of status, or status itself when it
// was never renamed. Used so filters also match legacy rows.
func legacyNameOf(status domain.OrderStatus) string {
	for legacy, canonical := range legacyOrderStatuses {
		if canonical == status {
			return legacy
		}
	}
	return string(status)
}
