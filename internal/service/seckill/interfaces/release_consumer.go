// internal/service/seckill/interfaces/release_consumer.go
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

// ReleaseConsumerAdapter drives the stock-release service from the release
// topic. These messages exist only when an in-process compensation could not
// reach the ledger, so traffic here should be rare.
type ReleaseConsumerAdapter struct {
	reader   *kafka.Reader
	appSvc   *application.StockReleaseService
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewReleaseConsumerAdapter(reader *kafka.Reader, appSvc *application.StockReleaseService, failures *mq.FailureHandler) *ReleaseConsumerAdapter {
	return &ReleaseConsumerAdapter{
		reader:   reader,
		appSvc:   appSvc,
		failures: failures,
	}
}

func (a *ReleaseConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Release consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Release consumer shutting down")
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

func (a *ReleaseConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Release consumer stopped")
}

func (a *ReleaseConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var payload domain.StockReleasePayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}

	err := a.appSvc.HandleRelease(ctx, &payload)
	if err == nil {
		infrastructure.StockReleasesApplied.Inc()
		return
	}
	if errors.Is(err, domain.ErrMalformedPayload) {
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}
	a.failures.Handle(ctx, msg, err)
}
