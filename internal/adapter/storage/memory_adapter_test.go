package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

func newMemory(t *testing.T) *MemoryAdapter {
	t.Helper()
	m, err := NewMemoryAdapter(time.Hour)
	require.NoError(t, err)
	return m
}

func TestMemoryUpsert_CreateThenOverwrite(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	created, err := m.Upsert(ctx, domain.StockRecord{ProductID: 1, Quantity: 10, MinStock: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	updated, err := m.Upsert(ctx, domain.StockRecord{ProductID: 1, Quantity: 30, MinStock: 2, ReservedQuantity: 99})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "id is immutable")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, 30, updated.Quantity)
	assert.Equal(t, 2, updated.MinStock)
	assert.Equal(t, 0, updated.ReservedQuantity, "reserved is not overwritten by upsert")

	other, err := m.Upsert(ctx, domain.StockRecord{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), other.ID)
}

func TestMemoryFindByProduct_NotFound(t *testing.T) {
	rec, err := newMemory(t).FindByProduct(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryConditionalDecrement(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	_, err := m.Upsert(ctx, domain.StockRecord{ProductID: 1, Quantity: 10})
	require.NoError(t, err)

	n, err := m.ConditionalDecrement(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.ConditionalDecrement(ctx, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "guard must reject without partial decrement")

	rec, err := m.FindByProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Quantity)

	n, err = m.ConditionalDecrement(ctx, 99, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemoryConditionalDecrement_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	initialStock := 20
	totalRequests := 50
	_, err := m.Upsert(ctx, domain.StockRecord{ProductID: 7, Quantity: initialStock})
	require.NoError(t, err)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.ConditionalDecrement(ctx, 7, 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			successCount.Add(int32(n))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	rec, err := m.FindByProduct(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)
}

func TestMemorySetQuantityAndDelete(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	n, err := m.SetQuantity(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = m.Upsert(ctx, domain.StockRecord{ProductID: 1, Quantity: 10})
	require.NoError(t, err)

	n, err = m.SetQuantity(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := m.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := m.FindByProduct(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryListLowAndOutOfStock(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	for _, r := range []domain.StockRecord{
		{ProductID: 1, Quantity: 50, MinStock: 5},
		{ProductID: 2, Quantity: 5, MinStock: 5},
		{ProductID: 3, Quantity: 0, MinStock: 5},
		{ProductID: 4, Quantity: 6, MinStock: 5},
	} {
		_, err := m.Upsert(ctx, r)
		require.NoError(t, err)
	}

	low, err := m.ListLowStock(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, productIDs(low))

	// the conditional index follows updates
	_, err = m.ConditionalDecrement(ctx, 4, 1)
	require.NoError(t, err)
	low, err = m.ListLowStock(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 4}, productIDs(low))

	out, err := m.ListOutOfStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, productIDs(out))
}

func TestMemoryClaim(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	ok, err := m.Claim(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Claim(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Release(ctx, "req-1"))
	ok, err = m.Claim(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClaim_Expires(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	ok, err := m.Claim(ctx, "req-2")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Hour)
	ok, err = m.Claim(ctx, "req-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func productIDs(records []domain.StockRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ProductID)
	}
	return ids
}
