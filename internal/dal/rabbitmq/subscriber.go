package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
)

// SubscriberConfig configures a queue consumer for one topic.
type SubscriberConfig struct {
	Topic          string
	Queue          string
	ConsumerTag    string
	HandlerTimeout time.Duration
}

// Subscriber consumes one queue with manual acknowledgements. Prefetch is one
// so messages of a queue are handled in order.
type Subscriber struct {
	cfg     SubscriberConfig
	channel *amqp.Channel
}

var _ ibroker.Subscriber = (*Subscriber)(nil)

func NewSubscriber(client *Client, cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	ch, err := client.NewChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to open subscriber channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	if err := DeclareTopology(ch, cfg.Topic, cfg.Queue); err != nil {
		return nil, err
	}

	return &Subscriber{cfg: cfg, channel: ch}, nil
}

// Subscribe acks on ibroker.Commit and requeues on ibroker.Retry.
func (s *Subscriber) Subscribe(ctx context.Context, h ibroker.Handler) error {
	msgs, err := s.channel.Consume(s.cfg.Queue, s.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", s.cfg.Queue, err)
	}

	slog.Info("RabbitMQ subscriber started", "queue", s.cfg.Queue, "consumer_tag", s.cfg.ConsumerTag)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				slog.Info("Message channel closed", "queue", s.cfg.Queue)

				return nil
			}

			s.handle(ctx, h, d)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, h ibroker.Handler, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandlerTimeout)
	defer cancel()

	if h(hctx, FromDelivery(s.cfg.Topic, d)) == ibroker.Commit {
		if err := d.Ack(false); err != nil {
			slog.Error("Failed to ack message", "error", err, "delivery_tag", d.DeliveryTag)
		}

		return
	}

	if err := d.Nack(false, true); err != nil {
		slog.Error("Failed to nack message", "error", err, "delivery_tag", d.DeliveryTag)
	}
}

func (s *Subscriber) Close() error {
	return s.channel.Close()
}

// FromDelivery converts an AMQP delivery into a broker message. AMQP has no
// partition offsets, so Position is nil.
func FromDelivery(topic string, d amqp.Delivery) ibroker.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
			continue
		}
		headers[k] = fmt.Sprint(v)
	}

	return ibroker.Message{
		Topic:   topic,
		Key:     d.RoutingKey,
		Value:   d.Body,
		Headers: headers,
	}
}
