// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"flashmall/internal/pkg/bootstrap"
	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName  = "delay-scheduler"
	servicePort  = 8093
	pollInterval = 1 * time.Second
)

var tracer = otel.Tracer(serviceName)

// Scheduler polls one delay level. Messages in a delay topic are ordered by
// arrival, so once the head message is not yet due, nothing behind it is.
type Scheduler struct {
	level       string
	delay       time.Duration
	brokers     []string
	kafkaReader *kafka.Reader

	// one writer per real topic; lazily created
	writerLock   sync.Mutex
	kafkaWriters map[string]*kafka.Writer
}

func NewScheduler(brokers []string, level string, delay time.Duration) *Scheduler {
	return &Scheduler{
		level:        level,
		delay:        delay,
		brokers:      brokers,
		kafkaReader:  mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		kafkaWriters: make(map[string]*kafka.Writer),
	}
}

// StartPolling runs until ctx is cancelled.
func (s *Scheduler) StartPolling(ctx context.Context, interval time.Duration) {
	logger.Ctx(ctx).Info().Str("level", s.level).Dur("interval", interval).Msg("✅ Polling scheduler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.kafkaReader.Close()
	defer s.closeWriters(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndForward(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Str("level", s.level).Msg("🛑 Polling scheduler shutting down")
			return
		}
	}
}

// checkAndForward drains due messages from the head of the delay topic.
func (s *Scheduler) checkAndForward(parentCtx context.Context) {
	for {
		fetchCtx, cancel := context.WithTimeout(parentCtx, 500*time.Millisecond)
		msg, err := s.kafkaReader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			// No message before the deadline, or shutdown. Wait for next tick.
			return
		}

		spanCtx := mq.ExtractTraceContext(parentCtx, msg.Headers)
		now := time.Now().UTC()
		deliveryTime := msg.Time.Add(s.delay)
		ctx, span := tracer.Start(spanCtx, "scheduler.CheckAndForward", trace.WithAttributes(
			attribute.String("delay.level", s.level),
			attribute.String("delivery.time", deliveryTime.Format(time.DateTime)),
		))

		if now.Before(deliveryTime) {
			// Head message not due; everything behind it is younger.
			span.AddEvent("HeadMessageNotDue")
			span.End()
			return
		}

		realTopic := mq.GetHeader(msg.Headers, mq.HeaderRealTopic)
		if realTopic == "" {
			logger.Ctx(ctx).Error().Str("level", s.level).Msg("real-topic header missing, skipping message")
			// Commit anyway or the message blocks the level forever.
			if err := s.kafkaReader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit skipped message")
			}
			span.End()
			continue
		}

		if err := s.forward(ctx, realTopic, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("real_topic", realTopic).Msg("failed to forward due message")
			// Do not commit; the message is redelivered next tick.
			span.RecordError(err)
			span.SetStatus(codes.Error, "forward failed")
			span.End()
			return
		}

		if err := s.kafkaReader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("forwarded but failed to commit")
			span.RecordError(err)
			span.End()
			return
		}
		logger.Ctx(ctx).Info().
			Str("level", s.level).
			Str("real_topic", realTopic).
			Msg("due message forwarded")
		span.AddEvent("MessageForwarded", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

func (s *Scheduler) forward(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, exists := s.kafkaWriters[realTopic]
	if !exists {
		writer = mq.NewKafkaWriter(s.brokers, realTopic)
		s.kafkaWriters[realTopic] = writer
	}
	s.writerLock.Unlock()

	forwarded := kafka.Message{Key: msg.Key, Value: msg.Value}
	mq.InjectTraceContext(ctx, &forwarded.Headers)
	return writer.WriteMessages(ctx, forwarded)
}

func (s *Scheduler) closeWriters(ctx context.Context) {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for topic, writer := range s.kafkaWriters {
		if err := writer.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

func main() {
	var wg sync.WaitGroup

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		StartWorkers: func(ctx context.Context, appCtx bootstrap.AppCtx) (func(ctx context.Context), error) {
			brokers := bootstrap.GetCurrentConfig().Infra.Kafka.Brokers
			for level, delay := range bootstrap.DelayLevels {
				scheduler := NewScheduler(brokers, level, delay)
				wg.Add(1)
				go func() {
					defer wg.Done()
					scheduler.StartPolling(ctx, pollInterval)
				}()
			}
			return func(ctx context.Context) { wg.Wait() }, nil
		},
	})
}
