// internal/service/seckill/interfaces/expiry_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/infrastructure"

	"github.com/segmentio/kafka-go"
)

// ExpiryConsumerAdapter drives the expiry service from the order-expiry topic.
// Messages arrive here only after the delay scheduler has forwarded them, i.e.
// the payment window has elapsed.
type ExpiryConsumerAdapter struct {
	reader   *kafka.Reader
	appSvc   *application.ExpiryService
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewExpiryConsumerAdapter(reader *kafka.Reader, appSvc *application.ExpiryService, failures *mq.FailureHandler) *ExpiryConsumerAdapter {
	return &ExpiryConsumerAdapter{
		reader:   reader,
		appSvc:   appSvc,
		failures: failures,
	}
}

func (a *ExpiryConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Expiry consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Expiry consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit offset")
			}
		}
	}()
}

func (a *ExpiryConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Expiry consumer stopped")
}

func (a *ExpiryConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var event domain.OrderExpiryEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}

	err := a.appSvc.HandleExpiry(ctx, &event)
	if err == nil {
		infrastructure.OrdersExpired.Inc()
		return
	}
	if errors.Is(err, domain.ErrMalformedPayload) {
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}
	a.failures.Handle(ctx, msg, err)
}
