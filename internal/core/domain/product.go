package domain

import "github.com/shopspring/decimal"

const ProductStatusApproved = "APPROVED"

// Product is the catalog projection the order module reads; the catalog owns the record.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Stock    int
	VendorID string
	Status   string
	Images   []string
}

func (p Product) IsApproved() bool {
	return p.Status == ProductStatusApproved
}
