// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/pkg/nacos"

	"gopkg.in/yaml.v3"
)

// Config is the shared configuration document of all flashmall services. It is
// stored as YAML in the Nacos config center and hot-reloaded on change; when
// Nacos holds no document the environment-variable defaults apply.
type Config struct {
	App struct {
		// PaymentExpiryLevel selects the delay-topic level used as the payment
		// window for seckill orders.
		PaymentExpiryLevel string `yaml:"paymentExpiryLevel"`
		MaxDeliveryRetries int    `yaml:"maxDeliveryRetries"`
	} `yaml:"app"`
	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Zookeeper struct {
			Addrs []string `yaml:"addrs"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`
}

const configDataId = "flashmall.yaml"

var currentConfig atomic.Value // *Config

// GetCurrentConfig returns the latest configuration snapshot. Safe to call from
// any goroutine; the snapshot is immutable once published.
func GetCurrentConfig() *Config {
	if c, ok := currentConfig.Load().(*Config); ok {
		return c
	}
	c := defaultConfig()
	currentConfig.Store(c)
	return c
}

// defaultConfig builds a config from environment variables, used stand-alone in
// development and as the base the Nacos document overrides.
func defaultConfig() *Config {
	c := &Config{}
	c.App.PaymentExpiryLevel = getEnv("PAYMENT_EXPIRY_LEVEL", "delay_topic_15m")
	c.App.MaxDeliveryRetries = 3
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	c.Infra.Kafka.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	c.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/flashmall?charset=utf8mb4&parseTime=True&loc=Local")
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", "localhost:6379")
	c.Infra.Zookeeper.Addrs = strings.Split(getEnv("ZOOKEEPER_ADDRS", "localhost:2181"), ",")
	return c
}

// initConfig loads the document from Nacos and subscribes to updates.
func initConfig(client *nacos.Client) error {
	data, err := client.GetConfig(configDataId)
	if err != nil {
		return fmt.Errorf("failed to fetch config %s from nacos: %w", configDataId, err)
	}
	if err := applyConfig(data); err != nil {
		return err
	}
	return client.ListenConfig(configDataId, func(data string) {
		if err := applyConfig(data); err != nil {
			logger.Logger().Error().Err(err).Msg("Ignoring invalid config update from Nacos")
		}
	})
}

func applyConfig(data string) error {
	c := defaultConfig()
	if strings.TrimSpace(data) != "" {
		if err := yaml.Unmarshal([]byte(data), c); err != nil {
			return fmt.Errorf("failed to parse config document: %w", err)
		}
	}
	currentConfig.Store(c)
	logger.Logger().Info().Msg("Configuration (re)loaded")
	return nil
}

// DelayLevels maps delay topics to their duration. The scheduler polls each of
// these; producers pick a level matching the timeout they need.
var DelayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_15m": 15 * time.Minute,
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
