package port

import (
	"context"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

type LedgerRepository interface {
	// FindByProduct returns nil, nil when no record exists
	FindByProduct(ctx context.Context, productID int64) (*domain.StockRecord, error)

	// Upsert creates the record or overwrites Quantity and MinStock, assigning ID and timestamps
	Upsert(ctx context.Context, record domain.StockRecord) (domain.StockRecord, error)

	// ConditionalDecrement subtracts amount only if quantity >= amount, in one atomic step.
	// Returns 1 on success, 0 when the guard fails or the record is missing
	ConditionalDecrement(ctx context.Context, productID int64, amount int) (int64, error)

	// SetQuantity overwrites quantity unconditionally, returns affected rows
	SetQuantity(ctx context.Context, productID int64, quantity int) (int64, error)

	// Delete removes the record, returns false if it did not exist
	Delete(ctx context.Context, productID int64) (bool, error)

	// ListLowStock returns records where quantity <= min_stock
	ListLowStock(ctx context.Context) ([]domain.StockRecord, error)

	// ListOutOfStock returns records where quantity = 0
	ListOutOfStock(ctx context.Context) ([]domain.StockRecord, error)
}
