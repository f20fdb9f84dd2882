// internal/service/seckill/application/retry.go
package application

import (
	"context"
	"time"
)

// withRetry runs op up to attempts times with a fixed backoff. Used only for
// compensation paths, where giving up strands inventory; regular transient
// failures rely on broker redelivery instead.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, op func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
