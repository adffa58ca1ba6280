package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
)

var ErrNotConfirmed = errors.New("message was not confirmed by broker")

// Publisher publishes persistent messages on a confirm-mode channel. Each
// topic maps to a topic exchange and the message key is the routing key.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	declared map[string]bool
}

var _ ibroker.Publisher = (*Publisher)(nil)

// NewPublisher opens a channel on client and puts it into confirm mode.
func NewPublisher(client *Client) (*Publisher, error) {
	ch, err := client.NewChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &Publisher{
		channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		declared: map[string]bool{},
	}, nil
}

// Publish sends msg and waits for the broker confirmation.
func (p *Publisher) Publish(ctx context.Context, msg ibroker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[msg.Topic] {
		if err := DeclareTopology(p.channel, msg.Topic, ""); err != nil {
			return err
		}
		p.declared[msg.Topic] = true
	}

	if err := p.channel.Publish(msg.Topic, msg.Key, false, false, ToPublishing(msg, time.Now())); err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", msg.Topic, err)
	}

	select {
	case c, ok := <-p.confirms:
		if !ok || !c.Ack {
			return ErrNotConfirmed
		}

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

// ToPublishing converts a broker message into a persistent AMQP publishing.
// The event id header becomes the AMQP message id.
func ToPublishing(msg ibroker.Message, at time.Time) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Headers[event.HeaderEventID],
		Timestamp:    at,
		Body:         msg.Value,
	}
}
