// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/nacos"
	"flashmall/internal/pkg/tracing"
	"flashmall/internal/pkg/utils"
)

// AppCtx hands the pieces a service needs to register its routes and workers.
type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo describes one service to StartService.
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// StartWorkers launches long-running background work (consumers, pollers).
	// The returned function is invoked during shutdown.
	StartWorkers func(ctx context.Context, appCtx AppCtx) (stop func(ctx context.Context), err error)
}

// StartService wraps the common startup and graceful-shutdown sequence of every
// flashmall service: config, tracing, Nacos registration, HTTP serving, workers.
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	log := logger.Logger()

	nacosAddrs := getEnv("NACOS_SERVER_ADDRS", "localhost:8848")
	nacosNamespace := getEnv("NACOS_NAMESPACE", "")
	nacosGroup := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

	nacosClient, err := nacos.NewClient(nacosAddrs, nacosNamespace, nacosGroup)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	if err := initConfig(nacosClient); err != nil {
		// The env-var defaults still apply; a missing document is not fatal.
		log.Warn().Err(err).Msg("Could not load config from Nacos, using environment defaults")
	}

	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ip, err := utils.GetOutboundIP()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to register service with nacos")
	}

	mux := http.NewServeMux()
	appCtx := AppCtx{Mux: mux, Nacos: nacosClient}
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(appCtx)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var stopWorkers func(ctx context.Context)
	if info.StartWorkers != nil {
		stopWorkers, err = info.StartWorkers(workerCtx, appCtx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start background workers")
		}
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Info().Str("addr", server.Addr).Msgf("✅ %s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("🛑 Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Teardown in reverse order of startup.
	if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		log.Error().Err(err).Msg("Error deregistering from Nacos")
	}
	nacosClient.Close()

	cancelWorkers()
	if stopWorkers != nil {
		stopWorkers(ctx)
	}

	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
