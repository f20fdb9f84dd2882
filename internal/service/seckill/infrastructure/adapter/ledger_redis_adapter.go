// internal/service/seckill/infrastructure/adapter/ledger_redis_adapter.go
package adapter

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"flashmall/internal/pkg/redis"
	"flashmall/internal/service/seckill/domain/port"
)

const (
	reserveScriptName     = "seckill_reserve"
	releaseOnceScriptName = "seckill_release_once"

	// releaseMarkerTTL bounds the dedup memory of ReleaseOnce; redeliveries of
	// one release intent all land well inside it.
	releaseMarkerTTL = 24 * 60 * 60
)

// LedgerRedisAdapter implements port.InventoryLedger on the fast store. The
// reserve script is the only code allowed to read and mutate a stock counter,
// keeping the check-and-decrement indivisible under concurrent callers on any
// number of process instances.
type LedgerRedisAdapter struct {
	redisClient *redis.Client
}

// NewLedgerRedisAdapter loads the reserve script and returns the adapter.
func NewLedgerRedisAdapter(redisClient *redis.Client) (*LedgerRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(reserveScriptName, reserveScript); err != nil {
		return nil, fmt.Errorf("failed to load critical reserve script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(releaseOnceScriptName, releaseOnceScript); err != nil {
		return nil, fmt.Errorf("failed to load release-once script: %w", err)
	}
	return &LedgerRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(productID string) string {
	// Hash tag keeps the counter addressable on one cluster slot.
	return fmt.Sprintf("seckill:stock:{%s}", productID)
}

func releaseMarkerKey(productID, releaseID string) string {
	// Same hash tag as the stock key so the release-once script stays
	// single-slot in cluster mode.
	return fmt.Sprintf("seckill:release:{%s}:%s", productID, releaseID)
}

// Reserve runs the atomic check-and-decrement.
func (a *LedgerRedisAdapter) Reserve(ctx context.Context, productID string, quantity int) (port.ReserveResult, error) {
	result, err := a.redisClient.RunScript(ctx, reserveScriptName, []string{stockKey(productID)}, quantity)
	if err != nil {
		return 0, fmt.Errorf("ledger failed to run reserve script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from reserve script: %T", result)
	}
	switch code {
	case 1:
		return port.ReserveGranted, nil
	case 0:
		return port.ReserveDenied, nil
	case -1:
		return port.ReserveUnknownProduct, nil
	default:
		return 0, fmt.Errorf("unknown result code from reserve script: %d", code)
	}
}

// Release gives reserved quantity back; a plain atomic increment.
func (a *LedgerRedisAdapter) Release(ctx context.Context, productID string, quantity int) error {
	if err := a.redisClient.GetClient().IncrBy(ctx, stockKey(productID), int64(quantity)).Err(); err != nil {
		return fmt.Errorf("ledger failed to release stock: %w", err)
	}
	return nil
}

// ReleaseOnce increments the counter at most once per releaseID. Marker write
// and increment run in one script, so a redelivered release intent sees the
// marker and no-ops instead of double-crediting stock.
func (a *LedgerRedisAdapter) ReleaseOnce(ctx context.Context, releaseID, productID string, quantity int) error {
	keys := []string{releaseMarkerKey(productID, releaseID), stockKey(productID)}
	if _, err := a.redisClient.RunScript(ctx, releaseOnceScriptName, keys, quantity, releaseMarkerTTL); err != nil {
		return fmt.Errorf("ledger failed to run release-once script: %w", err)
	}
	return nil
}

// Remaining reads the current counter; 0 when the product is unknown.
func (a *LedgerRedisAdapter) Remaining(ctx context.Context, productID string) (int64, error) {
	n, err := a.redisClient.GetClient().Get(ctx, stockKey(productID)).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger failed to read stock: %w", err)
	}
	return n, nil
}

// Prepare loads the sellable quantity for a sale window and clears the
// product's participation markers.
func (a *LedgerRedisAdapter) Prepare(ctx context.Context, productID string, stock int64) error {
	rdb := a.redisClient.GetClient()
	if err := rdb.Set(ctx, stockKey(productID), stock, 0).Err(); err != nil {
		return fmt.Errorf("failed to prepare seckill stock: %w", err)
	}

	iter := rdb.Scan(ctx, 0, fmt.Sprintf("seckill:guard:{%s}:*", productID), 100).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear participation marker: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan participation markers: %w", err)
	}
	return nil
}

var reserveScript = `
-- KEYS[1]: seckill stock key, e.g. seckill:stock:{product_123}
-- ARGV[1]: requested quantity

local stock = redis.call('get', KEYS[1])
if not stock then
    return -1 -- unknown product, sale window not prepared
end

stock = tonumber(stock)
local want = tonumber(ARGV[1])

if stock >= want then
    redis.call('decrby', KEYS[1], want)
    return 1 -- granted
end
return 0 -- denied, sold out
`

var releaseOnceScript = `
-- KEYS[1]: release marker key, unique per release intent
-- KEYS[2]: seckill stock key
-- ARGV[1]: quantity to restore
-- ARGV[2]: marker TTL in seconds

if redis.call('set', KEYS[1], 1, 'NX', 'EX', ARGV[2]) then
    redis.call('incrby', KEYS[2], tonumber(ARGV[1]))
    return 1 -- credited
end
return 0 -- already credited for this release id
`
