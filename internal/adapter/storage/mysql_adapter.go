package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

const inventorySchema = `
CREATE TABLE IF NOT EXISTS inventory (
	id                BIGINT AUTO_INCREMENT PRIMARY KEY,
	product_id        BIGINT NOT NULL,
	quantity          INT NOT NULL DEFAULT 0,
	reserved_quantity INT NOT NULL DEFAULT 0,
	min_stock         INT NOT NULL DEFAULT 5,
	created_at        DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at        DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	UNIQUE KEY idx_product_id (product_id),
	CONSTRAINT chk_quantity CHECK (quantity >= 0),
	CONSTRAINT chk_reserved CHECK (reserved_quantity >= 0)
)`

const selectColumns = `id, product_id, quantity, reserved_quantity, min_stock, created_at, updated_at`

// MySQLAdapter keeps the ledger in the inventory table. The DSN needs
// parseTime=true so DATETIME columns scan into time.Time.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, inventorySchema); err != nil {
		return fmt.Errorf("create inventory table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) FindByProduct(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	return scanRecord(m.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM inventory WHERE product_id = ?`, productID))
}

// Upsert relies on the unique product_id key, so concurrent upserts of the same
// product collapse into one row.
func (m *MySQLAdapter) Upsert(ctx context.Context, record domain.StockRecord) (domain.StockRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, reserved_quantity, min_stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE
			quantity = VALUES(quantity),
			min_stock = VALUES(min_stock),
			updated_at = NOW(6)`,
		record.ProductID, record.Quantity, record.ReservedQuantity, record.MinStock,
	)
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}

	saved, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM inventory WHERE product_id = ?`, record.ProductID))
	if err != nil {
		return domain.StockRecord{}, err
	}
	if saved == nil {
		return domain.StockRecord{}, fmt.Errorf("upsert inventory: row for product %d vanished", record.ProductID)
	}

	if err := tx.Commit(); err != nil {
		return domain.StockRecord{}, fmt.Errorf("commit: %w", err)
	}
	return *saved, nil
}

func (m *MySQLAdapter) ConditionalDecrement(ctx context.Context, productID int64, amount int) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, updated_at = NOW(6)
		WHERE product_id = ? AND quantity >= ?`,
		amount, productID, amount,
	)
	if err != nil {
		return 0, fmt.Errorf("decrement inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("decrement inventory: %w", err)
	}
	return rows, nil
}

func (m *MySQLAdapter) SetQuantity(ctx context.Context, productID int64, quantity int) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = ?, updated_at = NOW(6)
		WHERE product_id = ?`,
		quantity, productID,
	)
	if err != nil {
		return 0, fmt.Errorf("set quantity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set quantity: %w", err)
	}
	return rows, nil
}

func (m *MySQLAdapter) Delete(ctx context.Context, productID int64) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM inventory WHERE product_id = ?`, productID)
	if err != nil {
		return false, fmt.Errorf("delete inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete inventory: %w", err)
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) ListLowStock(ctx context.Context) ([]domain.StockRecord, error) {
	return m.list(ctx, `SELECT `+selectColumns+` FROM inventory WHERE quantity <= min_stock ORDER BY product_id`)
}

func (m *MySQLAdapter) ListOutOfStock(ctx context.Context) ([]domain.StockRecord, error) {
	return m.list(ctx, `SELECT `+selectColumns+` FROM inventory WHERE quantity = 0 ORDER BY product_id`)
}

func (m *MySQLAdapter) list(ctx context.Context, query string) ([]domain.StockRecord, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var out []domain.StockRecord
	for rows.Next() {
		var r domain.StockRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.ReservedQuantity,
			&r.MinStock, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return out, nil
}

func scanRecord(row *sql.Row) (*domain.StockRecord, error) {
	var r domain.StockRecord
	err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.ReservedQuantity,
		&r.MinStock, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &r, nil
}
