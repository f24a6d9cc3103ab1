package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

const (
	PaymentMethodCard           = "CARD"
	PaymentMethodCashOnDelivery = "CASH_ON_DELIVERY"

	PaymentDeclinedReason = "Payment declined by payment provider"
)

type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Status        PaymentStatus
	Method        string
	TransactionID string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

func (p *Payment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

func (p *Payment) MarkSuccess(transactionID string, now time.Time) error {
	if !p.IsPending() {
		return Conflictf("payment %s has already been processed", p.ID)
	}
	p.Status = PaymentStatusSuccess
	p.TransactionID = transactionID
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) MarkFailed(reason string, now time.Time) error {
	if !p.IsPending() {
		return Conflictf("payment %s has already been processed", p.ID)
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}
