package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

const (
	inventoryKeyPrefix   = "inventory:"
	inventoryIndexKey    = "inventory:products"
	inventorySeqKey      = "inventory:seq"
	idempotencyKeyPrefix = "idempotency:"
	defaultIdempotentTTL = 24 * time.Hour
)

var upsertScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
	redis.call('HSET', key, 'quantity', ARGV[2], 'min_stock', ARGV[4], 'updated_at', ARGV[5])
else
	local id = redis.call('INCR', KEYS[3])
	redis.call('HSET', key,
		'id', id,
		'product_id', ARGV[1],
		'quantity', ARGV[2],
		'reserved_quantity', ARGV[3],
		'min_stock', ARGV[4],
		'created_at', ARGV[5],
		'updated_at', ARGV[5])
	redis.call('SADD', KEYS[2], ARGV[1])
end
return redis.call('HGETALL', key)
`)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'quantity')
if not current then
	return 0
end

current = tonumber(current)
if current >= amount then
	redis.call('HINCRBY', key, 'quantity', -amount)
	redis.call('HSET', key, 'updated_at', ARGV[2])
	return 1
end

return 0
`)

var setQuantityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'quantity', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

var deleteScript = redis.NewScript(`
local removed = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return removed
`)

// RedisAdapter keeps each ledger row in a hash and mutates it only through Lua
// scripts, which Redis runs without interleaving.
type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, idempotencyTTL time.Duration) *RedisAdapter {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotentTTL
	}
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyTTL}
}

func recordKey(productID int64) string {
	return inventoryKeyPrefix + strconv.FormatInt(productID, 10)
}

func (r *RedisAdapter) FindByProduct(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	fields, err := r.client.HGetAll(ctx, recordKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall inventory: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec, err := parseRecord(fields)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RedisAdapter) Upsert(ctx context.Context, record domain.StockRecord) (domain.StockRecord, error) {
	now := time.Now().UTC().UnixNano()
	flat, err := upsertScript.Run(ctx, r.client,
		[]string{recordKey(record.ProductID), inventoryIndexKey, inventorySeqKey},
		record.ProductID, record.Quantity, record.ReservedQuantity, record.MinStock, now,
	).StringSlice()
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	return parseRecord(fields)
}

func (r *RedisAdapter) ConditionalDecrement(ctx context.Context, productID int64, amount int) (int64, error) {
	result, err := decrementStockScript.Run(ctx, r.client,
		[]string{recordKey(productID)}, amount, time.Now().UTC().UnixNano()).Int64()
	if err != nil {
		return 0, fmt.Errorf("decrement inventory: %w", err)
	}
	return result, nil
}

func (r *RedisAdapter) SetQuantity(ctx context.Context, productID int64, quantity int) (int64, error) {
	result, err := setQuantityScript.Run(ctx, r.client,
		[]string{recordKey(productID)}, quantity, time.Now().UTC().UnixNano()).Int64()
	if err != nil {
		return 0, fmt.Errorf("set quantity: %w", err)
	}
	return result, nil
}

func (r *RedisAdapter) Delete(ctx context.Context, productID int64) (bool, error) {
	removed, err := deleteScript.Run(ctx, r.client,
		[]string{recordKey(productID), inventoryIndexKey}, productID).Int64()
	if err != nil {
		return false, fmt.Errorf("delete inventory: %w", err)
	}
	return removed > 0, nil
}

func (r *RedisAdapter) ListLowStock(ctx context.Context) ([]domain.StockRecord, error) {
	return r.listWhere(ctx, func(rec domain.StockRecord) bool { return rec.IsLowStock() })
}

func (r *RedisAdapter) ListOutOfStock(ctx context.Context) ([]domain.StockRecord, error) {
	return r.listWhere(ctx, func(rec domain.StockRecord) bool { return rec.Quantity == 0 })
}

func (r *RedisAdapter) listWhere(ctx context.Context, keep func(domain.StockRecord) bool) ([]domain.StockRecord, error) {
	ids, err := r.client.SMembers(ctx, inventoryIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, inventoryKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}

	var out []domain.StockRecord
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// Claim implements port.IdempotencyRepository with SETNX.
func (r *RedisAdapter) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// SetStock seeds a record directly, bypassing the existence gate. Used by
// the stress tool and tests.
func (r *RedisAdapter) SetStock(ctx context.Context, productID int64, quantity, minStock int) error {
	_, err := r.Upsert(ctx, domain.StockRecord{ProductID: productID, Quantity: quantity, MinStock: minStock})
	return err
}

func parseRecord(fields map[string]string) (domain.StockRecord, error) {
	var rec domain.StockRecord
	ints := []struct {
		name string
		dst  *int64
	}{
		{"id", &rec.ID},
		{"product_id", &rec.ProductID},
	}
	for _, f := range ints {
		v, err := strconv.ParseInt(fields[f.name], 10, 64)
		if err != nil {
			return domain.StockRecord{}, fmt.Errorf("parse inventory field %s: %w", f.name, err)
		}
		*f.dst = v
	}

	counts := []struct {
		name string
		dst  *int
	}{
		{"quantity", &rec.Quantity},
		{"reserved_quantity", &rec.ReservedQuantity},
		{"min_stock", &rec.MinStock},
	}
	for _, f := range counts {
		v, err := strconv.Atoi(fields[f.name])
		if err != nil {
			return domain.StockRecord{}, fmt.Errorf("parse inventory field %s: %w", f.name, err)
		}
		*f.dst = v
	}

	for name, dst := range map[string]*time.Time{"created_at": &rec.CreatedAt, "updated_at": &rec.UpdatedAt} {
		ns, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return domain.StockRecord{}, fmt.Errorf("parse inventory field %s: %w", name, err)
		}
		*dst = time.Unix(0, ns).UTC()
	}
	return rec, nil
}
