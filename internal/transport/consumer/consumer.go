package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
)

// service represents the service layer interface.
type service interface {
	ProcessMessage(ctx context.Context, msg ibroker.Message) ibroker.Decision
}

// Consumer runs one subscription per consumed topic and feeds every message
// to the service.
type Consumer struct {
	subscribers     []ibroker.Subscriber
	service         service
	shutdownTimeout time.Duration
	restartBase     time.Duration
	restartMax      time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
	done            chan struct{}
}

// NewConsumer creates a new Consumer.
func NewConsumer(service service, subscribers ...ibroker.Subscriber) *Consumer {
	timeout := viper.GetDuration("consumer.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	restartBase := viper.GetDuration("consumer.restart_base")
	if restartBase <= 0 {
		restartBase = time.Second
	}
	restartMax := viper.GetDuration("consumer.restart_max")
	if restartMax < restartBase {
		restartMax = restartBase
	}

	return &Consumer{
		subscribers:     subscribers,
		service:         service,
		shutdownTimeout: timeout,
		restartBase:     restartBase,
		restartMax:      restartMax,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

var errSubscriptionEnded = errors.New("subscription ended")

// Run blocks until the consumer is shut down or ctx is cancelled. A failed
// subscription is restarted with capped exponential backoff and never stops
// the others.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.stop:
			slog.Info("Stopping consumer")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range c.subscribers {
		sub := sub
		g.Go(func() error {
			return c.subscribe(gctx, sub)
		})
	}

	slog.Info("Consumer started", "subscriptions", len(c.subscribers))

	return g.Wait()
}

// subscribe keeps sub running until ctx is done.
func (c *Consumer) subscribe(ctx context.Context, sub ibroker.Subscriber) error {
	backoff := retry.WithCappedDuration(c.restartMax, retry.NewExponential(c.restartBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := sub.Subscribe(ctx, c.processMessage)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errSubscriptionEnded
		}
		slog.Error("Subscription failed, restarting", "error", err)

		return retry.RetryableError(err)
	})
	if ctx.Err() != nil {
		return nil
	}

	return err
}

// processMessage processes a single message from the broker.
func (c *Consumer) processMessage(ctx context.Context, msg ibroker.Message) ibroker.Decision {
	ctx, span := otel.Tracer("consumer").Start(ctx, "Consumer.processMessage")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.String("messaging.message_id", msg.Headers[event.HeaderEventID]),
		attribute.String("event.type", msg.Headers[event.HeaderEventType]),
	)

	slog.Debug("Received message",
		"topic", msg.Topic,
		"key", msg.Key,
		"event_id", msg.Headers[event.HeaderEventID],
	)

	decision := c.service.ProcessMessage(ctx, msg)
	span.SetAttributes(attribute.String("consumer.decision", decision.String()))

	return decision
}

// Shutdown stops fetching and waits for the in-flight message to finish.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	c.stopOnce.Do(func() {
		close(c.stop)
	})

	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(c.shutdownTimeout):
		slog.Warn("Consumer shutdown timeout")
	}

	for _, sub := range c.subscribers {
		if err := sub.Close(); err != nil {
			slog.Error("Failed to close subscriber", "error", err)
		}
	}

	return nil
}
