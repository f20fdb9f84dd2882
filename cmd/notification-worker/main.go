// cmd/notification-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"flashmall/internal/pkg/bootstrap"
	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "notification-worker"
	servicePort = 8094
)

var tracer = otel.Tracer(serviceName)

// consumeLoop drains the notifications topic. Delivery here is a log line
// standing in for the push/sms fan-out; producers treat this topic as
// fire-and-forget either way.
func consumeLoop(ctx context.Context, reader *kafka.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	logger.Ctx(ctx).Info().Str("topic", reader.Config().Topic).Msg("✅ Notification worker started")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Notification worker shutting down")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
			time.Sleep(time.Second)
			continue
		}
		processNotification(ctx, msg)
	}
}

func processNotification(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := tracer.Start(ctx, "notification.Deliver", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event domain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("discarding malformed notification")
		return
	}
	span.SetAttributes(
		attribute.String("user.id", event.UserID),
		attribute.String("order.no", event.OrderNo),
	)

	logger.Ctx(ctx).Info().
		Str("user_id", event.UserID).
		Str("order_no", event.OrderNo).
		Str("message", event.Message).
		Msg("Notification delivered")
}

func main() {
	var (
		reader *kafka.Reader
		wg     sync.WaitGroup
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		StartWorkers: func(ctx context.Context, appCtx bootstrap.AppCtx) (func(ctx context.Context), error) {
			brokers := bootstrap.GetCurrentConfig().Infra.Kafka.Brokers
			reader = mq.NewKafkaReader(brokers, application.NotificationsTopic, serviceName+"-group")
			wg.Add(1)
			go consumeLoop(ctx, reader, &wg)
			return func(ctx context.Context) {
				reader.Close()
				wg.Wait()
			}, nil
		},
	})
}
