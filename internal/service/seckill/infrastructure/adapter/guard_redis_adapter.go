// internal/service/seckill/infrastructure/adapter/guard_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"time"

	"flashmall/internal/pkg/redis"
)

// participationTTL bounds the guard marker lifetime; a marker that is never
// explicitly released stops blocking the user after this.
const participationTTL = 24 * time.Hour

// GuardRedisAdapter implements port.ParticipationGuard: a one-shot
// set-if-absent marker per (user, product).
type GuardRedisAdapter struct {
	redisClient *redis.Client
}

func NewGuardRedisAdapter(redisClient *redis.Client) *GuardRedisAdapter {
	return &GuardRedisAdapter{redisClient: redisClient}
}

func guardKey(userID, productID string) string {
	return fmt.Sprintf("seckill:guard:{%s}:%s", productID, userID)
}

// TryAcquire returns true only for the first caller; everyone after that has
// already participated.
func (a *GuardRedisAdapter) TryAcquire(ctx context.Context, userID, productID string) (bool, error) {
	ok, err := a.redisClient.SetIfAbsent(ctx, guardKey(userID, productID), "1", participationTTL)
	if err != nil {
		return false, fmt.Errorf("guard failed to set participation marker: %w", err)
	}
	return ok, nil
}

// Release removes the marker so the user may retry after a downstream failure.
func (a *GuardRedisAdapter) Release(ctx context.Context, userID, productID string) error {
	if err := a.redisClient.Delete(ctx, guardKey(userID, productID)); err != nil {
		return fmt.Errorf("guard failed to delete participation marker: %w", err)
	}
	return nil
}
