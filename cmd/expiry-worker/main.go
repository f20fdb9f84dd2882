// cmd/expiry-worker/main.go
package main

import (
	"context"
	"net/http"

	"flashmall/internal/pkg/bootstrap"
	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/mq"
	"flashmall/internal/pkg/redis"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/infrastructure"
	"flashmall/internal/service/seckill/infrastructure/adapter"
	"flashmall/internal/service/seckill/interfaces"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "expiry-worker"
	servicePort = 8092
)

func main() {
	var (
		consumer        *interfaces.ExpiryConsumerAdapter
		releaseConsumer *interfaces.ReleaseConsumerAdapter
		dltConsumer     *interfaces.DltConsumerAdapter
		failures        *mq.FailureHandler
		notifWriter     *kafka.Writer
		redisClient     *redis.Client
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
			redisClient, err = redis.NewClient(cfg.Infra.Redis.Addrs)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to redis")
			}
			ledger, err := adapter.NewLedgerRedisAdapter(redisClient)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load inventory scripts")
			}

			notifWriter = mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, application.NotificationsTopic)
			notifier := adapter.NewNotificationKafkaAdapter(notifWriter)

			appSvc := application.NewExpiryService(
				infrastructure.NewGormOrderStore(db),
				ledger,
				infrastructure.NewGormTaskOutbox(db),
				notifier,
				otel.Tracer(serviceName),
			)

			reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, application.OrderExpiryTopic, serviceName+"-group")
			failures = mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, application.DeadLetterTopic, cfg.App.MaxDeliveryRetries)
			consumer = interfaces.NewExpiryConsumerAdapter(reader, appSvc, failures)
			consumer.Start(ctx)

			releaseSvc := application.NewStockReleaseService(ledger, otel.Tracer(serviceName))
			releaseReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, application.StockReleaseTopic, application.StockReleaseConsumer+"-group")
			releaseConsumer = interfaces.NewReleaseConsumerAdapter(releaseReader, releaseSvc, failures)
			releaseConsumer.Start(ctx)

			dltReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, application.DeadLetterTopic, serviceName+"-dlt-group")
			dltConsumer = interfaces.NewDltConsumerAdapter(dltReader)
			dltConsumer.Start(ctx)

			return func(ctx context.Context) {
				consumer.Stop(ctx)
				releaseConsumer.Stop(ctx)
				dltConsumer.Stop(ctx)
				if err := failures.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close failure handler")
				}
				notifWriter.Close()
				redisClient.Close()
			}, nil
		},
	})
}
