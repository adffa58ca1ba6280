// Package ibroker abstracts the message broker so that the outbox publisher
// and the consumers work the same way over Kafka and RabbitMQ.
package ibroker

import "context"

// Position is a broker-assigned location of a message. It is nil for brokers
// that have no notion of partitions and offsets.
type Position struct {
	Partition int32
	Offset    int64
}

// Message is a broker-agnostic message.
type Message struct {
	Topic    string
	Key      string
	Value    []byte
	Headers  map[string]string
	Position *Position
}

// Decision tells the transport what to do with a handled message.
type Decision int

const (
	// Commit advances the consumer position (or acks the delivery).
	Commit Decision = iota
	// Retry leaves the message to be delivered again.
	Retry
)

func (d Decision) String() string {
	if d == Commit {
		return "commit"
	}

	return "retry"
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) Decision

// Publisher sends messages and returns once the broker has accepted them.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber delivers messages from one topic to a handler until ctx is done
// or Close is called.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
