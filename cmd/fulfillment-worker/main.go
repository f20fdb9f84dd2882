// cmd/fulfillment-worker/main.go
package main

import (
	"context"
	"net/http"

	"flashmall/internal/pkg/bootstrap"
	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/infrastructure"
	"flashmall/internal/service/seckill/infrastructure/adapter"
	"flashmall/internal/service/seckill/interfaces"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "fulfillment-worker"
	servicePort = 8091
)

func main() {
	var (
		consumer    *interfaces.TaskConsumerAdapter
		failures    *mq.FailureHandler
		notifWriter *kafka.Writer
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		StartWorkers: func(ctx context.Context, appCtx bootstrap.AppCtx) (func(ctx context.Context), error) {
			cfg := bootstrap.GetCurrentConfig()
			log := logger.Logger()

			db, err := infrastructure.OpenDB(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open mysql")
			}

			notifWriter = mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, application.NotificationsTopic)
			notifier := adapter.NewNotificationKafkaAdapter(notifWriter)

			appSvc := application.NewFulfillmentService(
				infrastructure.NewGormOrderStore(db),
				infrastructure.NewGormCatalog(db),
				notifier,
				cfg.App.PaymentExpiryLevel,
				otel.Tracer(serviceName),
			)

			reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, application.OrderCreationTopic, application.FulfillmentConsumer)
			failures = mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, application.DeadLetterTopic, cfg.App.MaxDeliveryRetries)
			consumer = interfaces.NewTaskConsumerAdapter(reader, appSvc, failures)
			consumer.Start(ctx)

			return func(ctx context.Context) {
				consumer.Stop(ctx)
				if err := failures.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close failure handler")
				}
				notifWriter.Close()
			}, nil
		},
	})
}
