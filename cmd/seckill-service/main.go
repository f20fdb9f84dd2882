// cmd/seckill-service/main.go
package main

import (
	"context"
	"time"

	"flashmall/internal/pkg/bootstrap"
	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/redis"
	"flashmall/internal/pkg/zookeeper"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/infrastructure"
	"flashmall/internal/service/seckill/infrastructure/adapter"
	"flashmall/internal/service/seckill/infrastructure/rule"
	"flashmall/internal/service/seckill/interfaces"

	"go.opentelemetry.io/otel"
)

const (
	serviceName      = "seckill-service"
	servicePort      = 8090
	dispatchInterval = 200 * time.Millisecond
)

func main() {
	var (
		redisClient *redis.Client
		handler     *interfaces.SeckillHandler
		dispatcher  *infrastructure.OutboxDispatcher
		publisher   *infrastructure.KafkaTaskPublisher
		zkConn      *zookeeper.Conn
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := bootstrap.GetCurrentConfig()
			log := logger.Logger()

			var err error
			redisClient, err = redis.NewClient(cfg.Infra.Redis.Addrs)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to redis")
			}

			db, err := infrastructure.OpenDB(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open mysql")
			}

			ledger, err := adapter.NewLedgerRedisAdapter(redisClient)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load inventory scripts")
			}
			guard := adapter.NewGuardRedisAdapter(redisClient)
			catalog := infrastructure.NewGormCatalog(db)
			outbox := infrastructure.NewGormTaskOutbox(db)
			orders := infrastructure.NewGormOrderStore(db)

			rules, err := rule.NewCELRuleEngine()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to build rule engine")
			}

			orchestrator := application.NewSeckillOrchestrator(
				guard, ledger, catalog, outbox, rules, otel.Tracer(serviceName),
			)
			handler = interfaces.NewSeckillHandler(orchestrator, ledger, orders)
			handler.RegisterRoutes(appCtx.Mux)

			publisher = infrastructure.NewKafkaTaskPublisher(cfg.Infra.Kafka.Brokers)

			// Dispatcher leadership: only one replica polls the outbox at a time.
			zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Addrs, 5*time.Second)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to zookeeper")
			}
			lock, err := zookeeper.NewDistributedLock(zkConn, "outbox-dispatcher")
			if err != nil {
				log.Fatal().Err(err).Msg("failed to prepare dispatcher lock")
			}
			dispatcher = infrastructure.NewOutboxDispatcher(outbox, publisher, lock, dispatchInterval)
		},
		StartWorkers: func(ctx context.Context, appCtx bootstrap.AppCtx) (func(ctx context.Context), error) {
			go dispatcher.Run(ctx)
			return func(ctx context.Context) {
				if err := publisher.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to close task publisher")
				}
				zkConn.Close()
				redisClient.Close()
			}, nil
		},
	})
}
