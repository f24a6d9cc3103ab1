package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

func (m *MySQLAdapter) FindProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var (
		p          domain.Product
		imagesJSON []byte
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.category, p.price, p.vendor_id, p.status, p.images, COALESCE(i.stock, 0)
		FROM products p LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.VendorID, &p.Status, &imagesJSON, &p.Stock)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	if err := json.Unmarshal(imagesJSON, &p.Images); err != nil {
		return nil, fmt.Errorf("unmarshal product images: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal product images: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, vendor_id, status, images)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), category = VALUES(category), price = VALUES(price),
			vendor_id = VALUES(vendor_id), status = VALUES(status), images = VALUES(images)`,
		p.ID, p.Name, p.Category, p.Price, p.VendorID, p.Status, imagesJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	if err := upsertStock(ctx, tx, p.ID, p.Stock, m.now()); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertStock(ctx context.Context, db execer, productID string, quantity int, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, stock, version, updated_at) VALUES (?, ?, 0, ?)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), version = version + 1, updated_at = VALUES(updated_at)`,
		productID, quantity, now,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

// DecrementStock is a single conditional update, so concurrent reservations
// for one product serialize on its row lock and never oversell.
func (m *MySQLAdapter) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock - ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND stock >= ?`,
		quantity, m.now(), productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return true, nil
	}
	if _, err := m.GetStock(ctx, productID); err != nil {
		return false, err
	}
	return false, nil
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock + ?, version = version + 1, updated_at = ?
		WHERE product_id = ?`,
		quantity, m.now(), productID,
	)
	if err != nil {
		return fmt.Errorf("increment inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("inventory", productID)
	}
	return nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, productID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := m.db.QueryRowContext(ctx, `
		SELECT product_id, stock, version, updated_at
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(&inv.ProductID, &inv.Available, &inv.Version, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("inventory", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func (m *MySQLAdapter) SetStock(ctx context.Context, productID string, quantity int) error {
	return upsertStock(ctx, m.db, productID, quantity, m.now())
}
