package domain

import "time"

// Inventory is the ledger row for one product.
type Inventory struct {
	ProductID string
	Available int
	Version   int // optimistic locking
	UpdatedAt time.Time
}
