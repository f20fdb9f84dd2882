// internal/service/seckill/infrastructure/dispatcher.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"
	"flashmall/internal/pkg/zookeeper"
	"flashmall/internal/service/seckill/domain"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	dispatchBatchSize   = 100
	dispatchConcurrency = 8
	dispatchLockTimeout = 5 * time.Second
	rescheduleBackoff   = 30 * time.Second
)

// TaskPublisher abstracts the broker side of the relay so the dispatch loop
// can be driven in tests without Kafka.
type TaskPublisher interface {
	Publish(ctx context.Context, task *domain.SeckillTask) error
	Close() error
}

// KafkaTaskPublisher publishes outbox rows, keeping one writer per target
// topic. Headers persisted with the task travel as Kafka headers, which is how
// delay-topic rows carry their real-topic routing.
type KafkaTaskPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaTaskPublisher(brokers []string) *KafkaTaskPublisher {
	return &KafkaTaskPublisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *KafkaTaskPublisher) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := mq.NewKafkaWriter(p.brokers, topic)
	p.writers[topic] = w
	return w
}

func (p *KafkaTaskPublisher) Publish(ctx context.Context, task *domain.SeckillTask) error {
	headers := make([]kafka.Header, 0, len(task.Headers))
	for k, v := range task.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return mq.ProduceMessage(ctx, p.writerFor(task.Topic), []byte(task.OrderNo), task.Payload, headers...)
}

func (p *KafkaTaskPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return firstErr
}

// OutboxDispatcher is the relay half of the outbox: it polls PENDING rows and
// publishes each to its topic. MarkDispatched runs only after the broker has
// confirmed the write, so a crash between publish and mark yields a redelivery,
// never a loss.
type OutboxDispatcher struct {
	outbox    domain.TaskOutbox
	publisher TaskPublisher
	lock      *zookeeper.DistributedLock
	interval  time.Duration
	tracer    trace.Tracer
}

// NewOutboxDispatcher wires the relay. lock may be nil when running a single
// instance; with a lock, only the holder polls.
func NewOutboxDispatcher(outbox domain.TaskOutbox, publisher TaskPublisher, lock *zookeeper.DistributedLock, interval time.Duration) *OutboxDispatcher {
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		lock:      lock,
		interval:  interval,
		tracer:    otel.Tracer("outbox-dispatcher"),
	}
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	logger.Ctx(ctx).Info().Dur("interval", d.interval).Msg("✅ Outbox dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.dispatchBatch(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Outbox dispatcher shutting down")
			return
		}
	}
}

func (d *OutboxDispatcher) dispatchBatch(ctx context.Context) {
	if d.lock != nil {
		if err := d.lock.Lock(dispatchLockTimeout); err != nil {
			// Another instance holds the lease; skip this tick.
			logger.Ctx(ctx).Debug().Err(err).Msg("dispatcher lock not acquired, skipping tick")
			return
		}
		defer func() {
			if err := d.lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to release dispatcher lock")
			}
		}()
	}

	tasks, err := d.outbox.FetchDue(ctx, time.Now(), dispatchBatchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to fetch due outbox tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	// Tasks target independent orders, so the batch publishes concurrently.
	// Per-task failures reschedule that task only.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			d.dispatchOne(gctx, task)
			return nil
		})
	}
	g.Wait()
}

func (d *OutboxDispatcher) dispatchOne(ctx context.Context, task *domain.SeckillTask) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.DispatchTask", trace.WithAttributes(
		attribute.Int64("task.id", int64(task.ID)),
		attribute.String("task.order_no", task.OrderNo),
		attribute.String("task.topic", task.Topic),
	))
	defer span.End()

	if err := d.publisher.Publish(ctx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		TaskPublishFailures.WithLabelValues(task.Topic).Inc()
		logger.Ctx(ctx).Error().Err(err).
			Uint64("task_id", task.ID).
			Str("topic", task.Topic).
			Msg("failed to publish outbox task, rescheduling")
		if err := d.outbox.Reschedule(ctx, task.ID, time.Now().Add(rescheduleBackoff)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Uint64("task_id", task.ID).Msg("failed to reschedule task")
		}
		return
	}

	// Publish is confirmed; marking can still fail, which is the acceptable
	// at-least-once window. The consumer's dedup ledger absorbs the duplicate.
	if err := d.outbox.MarkDispatched(ctx, task.ID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Uint64("task_id", task.ID).
			Msg("published but failed to mark dispatched, expect a redelivery")
		return
	}
	TasksDispatched.WithLabelValues(task.Topic).Inc()
	logger.Ctx(ctx).Info().
		Uint64("task_id", task.ID).
		Str("order_no", task.OrderNo).
		Str("topic", task.Topic).
		Msg("outbox task dispatched")
}
