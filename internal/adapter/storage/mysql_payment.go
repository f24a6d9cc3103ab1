package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

const paymentColumns = `id, order_id, user_id, amount, status, method, transaction_id, failure_reason,
	created_at, updated_at, processed_at`

// CreatePayment relies on the unique order_id key for the one-payment-per-order rule.
func (m *MySQLAdapter) CreatePayment(ctx context.Context, p *domain.Payment) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.UserID, p.Amount, string(p.Status), p.Method, p.TransactionID, p.FailureReason,
		p.CreatedAt, p.UpdatedAt, nullTime(p.ProcessedAt),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return domain.Conflictf("payment already initiated for order %s", p.OrderID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p           domain.Payment
		status      string
		processedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &status, &p.Method, &p.TransactionID, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	p.ProcessedAt = timePtr(processedAt)
	return &p, nil
}

func (m *MySQLAdapter) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = ?`, orderID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment for order", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by order: %w", err)
	}
	return p, nil
}

// UpdatePayment only moves a payment out of PENDING, so a concurrent second
// settlement affects no rows.
func (m *MySQLAdapter) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, transaction_id = ?, failure_reason = ?, updated_at = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(p.Status), p.TransactionID, p.FailureReason, p.UpdatedAt, nullTime(p.ProcessedAt),
		p.ID, string(domain.PaymentStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Conflictf("payment %s has already been processed", p.ID)
	}
	return nil
}

func (m *MySQLAdapter) ListPaymentsByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Payment, error) {
	page = page.Normalize()
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
