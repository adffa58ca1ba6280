package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/IsVohi/OrderFlow-sub000/pkg/logger"
)

// MustInit loads .env when present, reads config.yaml and installs the logger.
// Every key can be overridden from the environment as ORDER_<KEY> with dots
// replaced by underscores.
func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}

	SetDefaults()
	viper.SetEnvPrefix("ORDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/order-svc")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("error while reading config file: " + err.Error())
		}
	}
	SetupLogger()
}

// SetDefaults registers the value of every key the service reads.
func SetDefaults() {
	viper.SetDefault("service.name", "order-service")
	viper.SetDefault("service.version", "1.0.0")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("server.http.port", "8080")
	viper.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.http.rate_limit.rps", 50)
	viper.SetDefault("server.http.rate_limit.burst", 100)
	viper.SetDefault("server.http.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.http.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.http.cors.allowed_headers", []string{"Content-Type", "Idempotency-Key", "X-Correlation-ID"})
	viper.SetDefault("server.http.cors.exposed_headers", []string{"Idempotency-Key", "X-Correlation-ID"})
	viper.SetDefault("server.http.cors.max_age", 300)

	viper.SetDefault("postgres.migrations_path", "migrations")
	viper.SetDefault("postgres.max_conns", 10)

	viper.SetDefault("redis.addr", "redis:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dedup_ttl", 24*time.Hour)

	viper.SetDefault("broker.driver", "kafka")
	viper.SetDefault("kafka.brokers", []string{"kafka:9092"})
	viper.SetDefault("kafka.write_timeout", 10*time.Second)
	viper.SetDefault("kafka.topics.orders", "order.events")
	viper.SetDefault("kafka.topics.inventory", "inventory.events")
	viper.SetDefault("kafka.topics.payment", "payment.events")

	viper.SetDefault("rabbitmq.host", "rabbitmq")
	viper.SetDefault("rabbitmq.port", 5672)

	viper.SetDefault("consumer.group", "order-service")
	viper.SetDefault("consumer.handler_timeout", 30*time.Second)
	viper.SetDefault("consumer.retry_base", 200*time.Millisecond)
	viper.SetDefault("consumer.retry_max", 30*time.Second)
	viper.SetDefault("consumer.shutdown_timeout", 10*time.Second)
	viper.SetDefault("consumer.restart_base", time.Second)
	viper.SetDefault("consumer.restart_max", time.Minute)

	viper.SetDefault("outbox.poll_interval", 5*time.Second)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.stuck_after", time.Minute)

	viper.SetDefault("housekeeping.interval", time.Hour)
	viper.SetDefault("housekeeping.retention", 7*24*time.Hour)

	viper.SetDefault("inventory.base_url", "")
	viper.SetDefault("inventory.timeout", 3*time.Second)

	viper.SetDefault("tracing.enabled", true)
	viper.SetDefault("tracing.jaeger_endpoint", "http://jaeger:14268/api/traces")
}

func SetupLogger() {
	handler := logger.NewHandler(&slog.HandlerOptions{
		Level: logger.ParseLevel(viper.GetString("log.level")),
	})
	log := slog.New(handler)
	slog.SetDefault(log)
}
