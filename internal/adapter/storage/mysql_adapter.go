package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

const mysqlDuplicateEntry = 1062

var ErrOptimisticLock = &domain.Error{Kind: domain.KindConflict, Message: "optimistic lock conflict"}

var (
	_ port.StockRepository   = (*MySQLAdapter)(nil)
	_ port.OrderRepository   = (*MySQLAdapter)(nil)
	_ port.PaymentRepository = (*MySQLAdapter)(nil)
	_ port.CatalogRepository = (*MySQLAdapter)(nil)
	_ port.CatalogWriter     = (*MySQLAdapter)(nil)
)

// MySQLAdapter implements the order, payment, catalog and stock repositories
// on one database.
type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizeDSN turns on parseTime, which every DATETIME scan here relies on.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

const orderColumns = `id, user_id, items, total, status, shipping_address, cancellation_reason, status_note,
	estimated_delivery_date, created_at, updated_at, confirmed_at, shipped_at, delivered_at, cancelled_at, version`

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	order.Version = 1
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, itemsJSON, order.Total, string(order.Status), addressJSON,
		order.CancellationReason, order.StatusNote, nullTime(order.EstimatedDeliveryDate),
		order.CreatedAt, order.UpdatedAt,
		nullTime(order.ConfirmedAt), nullTime(order.ShippedAt), nullTime(order.DeliveredAt), nullTime(order.CancelledAt),
		order.Version,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return domain.Conflictf("order %s already exists", order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		itemsJSON   []byte
		addressJSON []byte
		status      string
		estimated   sql.NullTime
		confirmedAt sql.NullTime
		shippedAt   sql.NullTime
		deliveredAt sql.NullTime
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Total, &status, &addressJSON,
		&o.CancellationReason, &o.StatusNote, &estimated,
		&o.CreatedAt, &o.UpdatedAt, &confirmedAt, &shippedAt, &deliveredAt, &cancelledAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}

	if o.Status, err = decodeOrderStatus(status); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	o.EstimatedDeliveryDate = timePtr(estimated)
	o.ConfirmedAt = timePtr(confirmedAt)
	o.ShippedAt = timePtr(shippedAt)
	o.DeliveredAt = timePtr(deliveredAt)
	o.CancelledAt = timePtr(cancelledAt)
	return &o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

// UpdateOrder writes the mutable fields only; items and total never change.
func (m *MySQLAdapter) UpdateOrder(ctx context.Context, order *domain.Order) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, cancellation_reason = ?, status_note = ?, estimated_delivery_date = ?,
			updated_at = ?, confirmed_at = ?, shipped_at = ?, delivered_at = ?, cancelled_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(order.Status), order.CancellationReason, order.StatusNote, nullTime(order.EstimatedDeliveryDate),
		order.UpdatedAt, nullTime(order.ConfirmedAt), nullTime(order.ShippedAt),
		nullTime(order.DeliveredAt), nullTime(order.CancelledAt),
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	order.Version++
	return nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]*domain.Order, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.VendorID != "" {
		clauses = append(clauses, "JSON_CONTAINS(items, JSON_OBJECT('vendor_id', ?))")
		args = append(args, filter.VendorID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status IN (?, ?)")
		args = append(args, string(filter.Status), legacyNameOf(filter.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	page = page.Normalize()
	args = append(args, page.Limit, page.Offset)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
