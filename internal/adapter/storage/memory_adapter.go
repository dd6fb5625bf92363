package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

const (
	stockTable       = "inventory"
	idempotencyTable = "idempotency"
)

type claim struct {
	Key       string
	ExpiresAt time.Time
}

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		stockTable: {
			Name: stockTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ProductID"},
				},
				"low_stock": {
					Name: "low_stock",
					Indexer: &memdb.ConditionalIndex{Conditional: func(obj interface{}) (bool, error) {
						r, ok := obj.(*domain.StockRecord)
						if !ok {
							return false, fmt.Errorf("unexpected object %T", obj)
						}
						return r.IsLowStock(), nil
					}},
				},
				"out_of_stock": {
					Name: "out_of_stock",
					Indexer: &memdb.ConditionalIndex{Conditional: func(obj interface{}) (bool, error) {
						r, ok := obj.(*domain.StockRecord)
						if !ok {
							return false, fmt.Errorf("unexpected object %T", obj)
						}
						return r.Quantity == 0, nil
					}},
				},
			},
		},
		idempotencyTable: {
			Name: idempotencyTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
			},
		},
	},
}

// MemoryAdapter is a LedgerRepository on go-memdb. memdb allows a single
// write transaction at a time, so every read-check-write below is atomic.
// Stored records are never mutated in place.
type MemoryAdapter struct {
	db             *memdb.MemDB
	nextID         atomic.Int64
	now            func() time.Time
	idempotencyTTL time.Duration
}

func NewMemoryAdapter(idempotencyTTL time.Duration) (*MemoryAdapter, error) {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotentTTL
	}
	return &MemoryAdapter{
		db:             db,
		now:            func() time.Time { return time.Now().UTC() },
		idempotencyTTL: idempotencyTTL,
	}, nil
}

func (m *MemoryAdapter) FindByProduct(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	rec, err := first(txn, productID)
	if err != nil || rec == nil {
		return nil, err
	}
	out := *rec
	return &out, nil
}

func (m *MemoryAdapter) Upsert(ctx context.Context, record domain.StockRecord) (domain.StockRecord, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	existing, err := first(txn, record.ProductID)
	if err != nil {
		return domain.StockRecord{}, err
	}

	now := m.now()
	var next domain.StockRecord
	if existing == nil {
		next = record
		next.ID = m.nextID.Add(1)
		next.CreatedAt = now
	} else {
		next = *existing
		next.Quantity = record.Quantity
		next.MinStock = record.MinStock
	}
	next.UpdatedAt = now

	if err := txn.Insert(stockTable, &next); err != nil {
		return domain.StockRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}
	txn.Commit()
	return next, nil
}

func (m *MemoryAdapter) ConditionalDecrement(ctx context.Context, productID int64, amount int) (int64, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	existing, err := first(txn, productID)
	if err != nil {
		return 0, err
	}
	if existing == nil || existing.Quantity < amount {
		return 0, nil
	}

	next := *existing
	next.Quantity -= amount
	next.UpdatedAt = m.now()
	if err := txn.Insert(stockTable, &next); err != nil {
		return 0, fmt.Errorf("decrement inventory: %w", err)
	}
	txn.Commit()
	return 1, nil
}

func (m *MemoryAdapter) SetQuantity(ctx context.Context, productID int64, quantity int) (int64, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	existing, err := first(txn, productID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, nil
	}

	next := *existing
	next.Quantity = quantity
	next.UpdatedAt = m.now()
	if err := txn.Insert(stockTable, &next); err != nil {
		return 0, fmt.Errorf("set quantity: %w", err)
	}
	txn.Commit()
	return 1, nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, productID int64) (bool, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	existing, err := first(txn, productID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := txn.Delete(stockTable, existing); err != nil {
		return false, fmt.Errorf("delete inventory: %w", err)
	}
	txn.Commit()
	return true, nil
}

func (m *MemoryAdapter) ListLowStock(ctx context.Context) ([]domain.StockRecord, error) {
	return m.listWhere("low_stock")
}

func (m *MemoryAdapter) ListOutOfStock(ctx context.Context) ([]domain.StockRecord, error) {
	return m.listWhere("out_of_stock")
}

func (m *MemoryAdapter) listWhere(index string) ([]domain.StockRecord, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(stockTable, index, true)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}

	var out []domain.StockRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *obj.(*domain.StockRecord))
	}
	return out, nil
}

// Claim implements port.IdempotencyRepository. Expired claims are overwritten.
func (m *MemoryAdapter) Claim(ctx context.Context, key string) (bool, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	now := m.now()
	raw, err := txn.First(idempotencyTable, "id", key)
	if err != nil {
		return false, fmt.Errorf("query idempotency: %w", err)
	}
	if raw != nil && now.Before(raw.(*claim).ExpiresAt) {
		return false, nil
	}
	if err := txn.Insert(idempotencyTable, &claim{Key: key, ExpiresAt: now.Add(m.idempotencyTTL)}); err != nil {
		return false, fmt.Errorf("insert idempotency: %w", err)
	}
	txn.Commit()
	return true, nil
}

func (m *MemoryAdapter) Release(ctx context.Context, key string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(idempotencyTable, "id", key); err != nil {
		return fmt.Errorf("delete idempotency: %w", err)
	}
	txn.Commit()
	return nil
}

func first(txn *memdb.Txn, productID int64) (*domain.StockRecord, error) {
	raw, err := txn.First(stockTable, "id", productID)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*domain.StockRecord), nil
}
