package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/inventory"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/kafka"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/rabbitmq"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/redis"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow"
	"github.com/IsVohi/OrderFlow-sub000/internal/otel"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/consumersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/consumer"
	httptransport "github.com/IsVohi/OrderFlow-sub000/internal/transport/http"
	"github.com/IsVohi/OrderFlow-sub000/internal/worker/housekeeping"
	outboxworker "github.com/IsVohi/OrderFlow-sub000/internal/worker/outbox"
)

const (
	driverKafka    = "kafka"
	driverRabbitMQ = "rabbitmq"
)

// App represents the application.
type App struct {
	orderSvc           *ordersvc.OrderService
	consumerSvc        *consumersvc.ConsumerService
	httpTransport      *httptransport.HTTPTransport
	consumerTransp     *consumer.Consumer
	outboxWorker       *outboxworker.Worker
	housekeepingWorker *housekeeping.Worker
	publisher          ibroker.Publisher
	rabbitMqClient     *rabbitmq.Client
	redisClient        *redis.Client
	postgresClient     *postgres.Client
	otelController     *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	a := &App{}
	a.otelController = otel.MustInitOtel()
	a.postgresClient = postgres.MustNewClient()
	if viper.GetString("redis.addr") != "" {
		a.redisClient = redis.MustNewClient()
	}

	ordersTopic := viper.GetString("kafka.topics.orders")
	orderOpts := []ordersvc.Option{
		ordersvc.WithPostgresClient(a.postgresClient),
		ordersvc.WithEventSource(eventSource()),
		ordersvc.WithOrderTopic(ordersTopic),
	}
	if baseURL := viper.GetString("inventory.base_url"); baseURL != "" {
		orderOpts = append(orderOpts, ordersvc.WithStockValidator(
			inventory.NewClient(baseURL, viper.GetDuration("inventory.timeout")),
		))
	}
	a.orderSvc = ordersvc.MustNewOrderService(orderOpts...)

	group := viper.GetString("consumer.group")
	consumerOpts := []consumersvc.Option{
		consumersvc.WithPostgresClient(a.postgresClient),
		consumersvc.WithOrderService(a.orderSvc),
		consumersvc.WithConsumerGroup(group),
	}
	if a.redisClient != nil {
		consumerOpts = append(consumerOpts, consumersvc.WithDedupCache(
			redis.NewDedupCache(a.redisClient, group, viper.GetDuration("redis.dedup_ttl")),
		))
	}
	a.consumerSvc = consumersvc.MustNewConsumerService(consumerOpts...)

	topics := []string{
		viper.GetString("kafka.topics.inventory"),
		viper.GetString("kafka.topics.payment"),
	}
	publisher, subscribers := a.mustNewBroker(group, topics)
	a.publisher = publisher

	a.httpTransport = httptransport.NewHTTPTransport(a.orderSvc)
	a.httpTransport.RegisterRoutes()

	a.consumerTransp = consumer.NewConsumer(a.consumerSvc, subscribers...)
	a.outboxWorker = outboxworker.NewWorker(uow.NewFactory(a.postgresClient), publisher)
	a.housekeepingWorker = housekeeping.NewWorker(uow.NewFactory(a.postgresClient))

	return a
}

// mustNewBroker builds the publisher and one subscriber per topic for the
// configured broker.driver.
func (a *App) mustNewBroker(group string, topics []string) (ibroker.Publisher, []ibroker.Subscriber) {
	handlerTimeout := viper.GetDuration("consumer.handler_timeout")
	subscribers := make([]ibroker.Subscriber, 0, len(topics))

	switch driver := viper.GetString("broker.driver"); driver {
	case driverKafka:
		brokers := viper.GetStringSlice("kafka.brokers")
		publisher := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:      brokers,
			WriteTimeout: viper.GetDuration("kafka.write_timeout"),
		})
		for _, topic := range topics {
			subscribers = append(subscribers, kafka.NewSubscriber(kafka.SubscriberConfig{
				Brokers:        brokers,
				GroupID:        group,
				Topic:          topic,
				HandlerTimeout: handlerTimeout,
				RetryBase:      viper.GetDuration("consumer.retry_base"),
				RetryMax:       viper.GetDuration("consumer.retry_max"),
			}))
		}
		slog.Info("Kafka broker configured", "brokers", brokers, "topics", topics)

		return publisher, subscribers
	case driverRabbitMQ:
		a.rabbitMqClient = rabbitmq.MustNewClient()
		publisher, err := rabbitmq.NewPublisher(a.rabbitMqClient)
		if err != nil {
			panic(err)
		}
		for _, topic := range topics {
			sub, err := rabbitmq.NewSubscriber(a.rabbitMqClient, rabbitmq.SubscriberConfig{
				Topic:          topic,
				Queue:          group + "." + topic,
				ConsumerTag:    group,
				HandlerTimeout: handlerTimeout,
			})
			if err != nil {
				panic(err)
			}
			subscribers = append(subscribers, sub)
		}
		slog.Info("RabbitMQ broker configured", "topics", topics)

		return publisher, subscribers
	default:
		panic(fmt.Sprintf("unknown broker.driver %q", driver))
	}
}

func eventSource() event.Source {
	instance, err := os.Hostname()
	if err != nil {
		instance = "unknown"
	}

	return event.Source{
		Service:  viper.GetString("service.name"),
		Version:  viper.GetString("service.version"),
		Instance: instance,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server", "port", viper.GetString("server.http.port"))
		if err := a.httpTransport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting consumer")
		if err := a.consumerTransp.Run(ctx); err != nil {
			slog.Error("Consumer error", "error", err)
		}
	}()

	go a.outboxWorker.Start(ctx)
	go a.housekeepingWorker.Start(ctx)

	<-stop
	slog.Info("Shutdown signal received")

	a.gracefulShutdown()
	cancel()
}

// gracefulShutdown stops intake first, then background work, then closes the
// connections those components used.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("server.http.shutdown_timeout")+5*time.Second)
	defer cancel()

	httpCtx, httpCancel := context.WithTimeout(ctx, viper.GetDuration("server.http.shutdown_timeout"))
	if err := a.httpTransport.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}
	httpCancel()

	if err := a.consumerTransp.Shutdown(); err != nil {
		slog.Error("Consumer shutdown error", "error", err)
	} else {
		slog.Info("Consumer stopped gracefully")
	}

	a.outboxWorker.Stop()
	slog.Info("Outbox worker stopped gracefully")
	a.housekeepingWorker.Stop()
	slog.Info("Housekeeping worker stopped gracefully")

	if err := a.publisher.Close(); err != nil {
		slog.Error("Publisher close error", "error", err)
	}

	if a.rabbitMqClient != nil {
		if err := a.rabbitMqClient.Close(); err != nil {
			slog.Error("RabbitMQ connection close error", "error", err)
		} else {
			slog.Info("RabbitMQ connection closed gracefully")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			slog.Error("Redis connection close error", "error", err)
		} else {
			slog.Info("Redis connection closed gracefully")
		}
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}
