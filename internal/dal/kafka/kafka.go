// Package kafka implements the broker abstraction on segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
)

var errRedeliver = errors.New("handler asked for redelivery")

// PublisherConfig configures the producer.
type PublisherConfig struct {
	Brokers      []string
	WriteTimeout time.Duration
}

// Publisher publishes messages synchronously. Each call returns only after
// all in-sync replicas acknowledged the write. kafka-go has no idempotent
// producer mode, so a retried write may duplicate a message; consumers dedupe
// by event id.
type Publisher struct {
	writer *kafka.Writer
}

var _ ibroker.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher that partitions by message key.
func NewPublisher(cfg PublisherConfig) *Publisher {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: writeTimeout,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, msg ibroker.Message) error {
	if err := p.writer.WriteMessages(ctx, ToKafkaMessage(msg)); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", msg.Topic, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// SubscriberConfig configures a consumer group reader for one topic.
type SubscriberConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// HandlerTimeout bounds one handler call. The call runs on a context
	// detached from shutdown so an in-flight message can finish.
	HandlerTimeout time.Duration
	RetryBase      time.Duration
	RetryMax       time.Duration
}

// messageReader is the part of *kafka.Reader the subscriber drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber reads one topic as part of a consumer group and commits offsets
// manually, only after the handler returned ibroker.Commit.
type Subscriber struct {
	cfg    SubscriberConfig
	reader messageReader
}

var _ ibroker.Subscriber = (*Subscriber)(nil)

func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	cfg = cfg.withDefaults()

	return &Subscriber{
		cfg: cfg,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
			// Zero means synchronous commits through CommitMessages.
			CommitInterval: 0,
		}),
	}
}

func (cfg SubscriberConfig) withDefaults() SubscriberConfig {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}

	return cfg
}

// Subscribe blocks until ctx is cancelled or the reader fails. A message is
// redelivered to the handler with exponential backoff until it is committed,
// which keeps per-partition order.
func (s *Subscriber) Subscribe(ctx context.Context, h ibroker.Handler) error {
	slog.Info("Kafka subscriber started", "topic", s.cfg.Topic, "group", s.cfg.GroupID)

	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("failed to fetch message from %s: %w", s.cfg.Topic, err)
		}

		if err := s.handle(ctx, h, FromKafkaMessage(m)); err != nil {
			// Shutdown while waiting to redeliver; the offset stays uncommitted.
			return nil
		}

		if err := s.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			return fmt.Errorf("failed to commit offset %d on %s/%d: %w", m.Offset, m.Topic, m.Partition, err)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, h ibroker.Handler, msg ibroker.Message) error {
	backoff := retry.WithCappedDuration(s.cfg.RetryMax, retry.NewExponential(s.cfg.RetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandlerTimeout)
		defer cancel()

		if h(hctx, msg) == ibroker.Retry {
			slog.Warn("Message will be redelivered",
				"topic", msg.Topic,
				"partition", msg.Position.Partition,
				"offset", msg.Position.Offset,
			)

			return retry.RetryableError(errRedeliver)
		}

		return nil
	})
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}

// ToKafkaMessage converts a broker message into a kafka-go message.
func ToKafkaMessage(msg ibroker.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
	}
}

// FromKafkaMessage converts a fetched kafka-go message into a broker message.
func FromKafkaMessage(m kafka.Message) ibroker.Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return ibroker.Message{
		Topic:   m.Topic,
		Key:     string(m.Key),
		Value:   m.Value,
		Headers: headers,
		Position: &ibroker.Position{
			Partition: int32(m.Partition),
			Offset:    m.Offset,
		},
	}
}
