package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

// Returns -1 when the product has no stock key, 0 when stock is short and 1
// when the reservation was taken.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// Release only touches existing keys so a typo cannot create stock out of nothing.
var releaseStockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end
return redis.call('INCRBY', key, tonumber(ARGV[1]))
`)

var (
	_ port.StockRepository       = (*RedisAdapter)(nil)
	_ port.IdempotencyRepository = (*RedisAdapter)(nil)
)

// RedisAdapter keeps the stock ledger and checkout idempotency keys in Redis.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := reserveStockScript.Run(ctx, r.client, []string{stockKeyPrefix + productID}, quantity).Int()
	if err != nil {
		return false, fmt.Errorf("run reserve script: %w", err)
	}

	switch result {
	case -1:
		return false, domain.NotFound("inventory", productID)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := releaseStockScript.Run(ctx, r.client, []string{stockKeyPrefix + productID}, quantity).Int()
	if err != nil {
		return fmt.Errorf("run release script: %w", err)
	}
	if result == -1 {
		return domain.NotFound("inventory", productID)
	}
	return nil
}

func (r *RedisAdapter) GetStock(ctx context.Context, productID string) (*domain.Inventory, error) {
	stock, err := r.client.Get(ctx, stockKeyPrefix+productID).Int()
	if errors.Is(err, redis.Nil) {
		return nil, domain.NotFound("inventory", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &domain.Inventory{ProductID: productID, Available: stock}, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID string, quantity int) error {
	return r.client.Set(ctx, stockKeyPrefix+productID, quantity, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
