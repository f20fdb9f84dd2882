// internal/service/seckill/interfaces/task_consumer.go
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

// TaskConsumerAdapter drives the fulfillment service from the order-creation
// topic. The offset is always committed after the message has been handed over;
// redelivery of failures is done by the failure handler's republish, and the
// store's dedup ledger absorbs duplicates.
type TaskConsumerAdapter struct {
	reader   *kafka.Reader
	appSvc   *application.FulfillmentService
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewTaskConsumerAdapter(reader *kafka.Reader, appSvc *application.FulfillmentService, failures *mq.FailureHandler) *TaskConsumerAdapter {
	return &TaskConsumerAdapter{
		reader:   reader,
		appSvc:   appSvc,
		failures: failures,
	}
}

// Start begins consuming. Long-running; returns immediately, work happens in a
// goroutine until Stop.
func (a *TaskConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Task consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Task consumer shutting down")
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

func (a *TaskConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Task consumer stopped")
}

func (a *TaskConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var payload domain.SeckillTaskPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		// Not even valid JSON: straight to the dead-letter topic.
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}

	err := a.appSvc.HandleTask(ctx, &payload)
	if err == nil {
		infrastructure.OrdersFulfilled.Inc()
		return
	}
	if errors.Is(err, domain.ErrMalformedPayload) || errors.Is(err, domain.ErrProductNotFound) {
		a.failures.Handle(ctx, msg, mq.Permanent{Err: err})
		return
	}
	a.failures.Handle(ctx, msg, err)
}
