package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
)

func TestToKafkaMessage(t *testing.T) {
	m := ToKafkaMessage(ibroker.Message{
		Topic:   "order.events",
		Key:     "order-1",
		Value:   []byte(`{"a":1}`),
		Headers: map[string]string{"event-id": "e-1"},
	})

	assert.Equal(t, "order.events", m.Topic)
	assert.Equal(t, []byte("order-1"), m.Key)
	assert.Equal(t, []byte(`{"a":1}`), m.Value)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "event-id", m.Headers[0].Key)
	assert.Equal(t, []byte("e-1"), m.Headers[0].Value)
}

func TestFromKafkaMessage_CarriesPosition(t *testing.T) {
	msg := FromKafkaMessage(kafka.Message{
		Topic:     "payment.events",
		Partition: 3,
		Offset:    17,
		Key:       []byte("order-1"),
		Value:     []byte("{}"),
		Headers:   []kafka.Header{{Key: "correlation-id", Value: []byte("c-1")}},
	})

	require.NotNil(t, msg.Position)
	assert.Equal(t, int32(3), msg.Position.Partition)
	assert.Equal(t, int64(17), msg.Position.Offset)
	assert.Equal(t, "order-1", msg.Key)
	assert.Equal(t, "c-1", msg.Headers["correlation-id"])
}

type fakeReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		return m, nil
	}
	r.mu.Unlock()

	<-ctx.Done()

	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.commits = append(r.commits, m.Offset)
	}

	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int64(nil), r.commits...)
}

func newTestSubscriber(reader *fakeReader, retryBase time.Duration) *Subscriber {
	return &Subscriber{
		cfg: SubscriberConfig{
			Topic:     "payment.events",
			GroupID:   "order-service",
			RetryBase: retryBase,
			RetryMax:  retryBase,
		}.withDefaults(),
		reader: reader,
	}
}

func subscribe(ctx context.Context, s *Subscriber, h ibroker.Handler) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Subscribe(ctx, h)
	}()

	return errCh
}

func TestSubscriber_CommitsOnlyAfterHandlerCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "payment.events", Partition: 0, Offset: 7},
		{Topic: "payment.events", Partition: 0, Offset: 8},
	}}
	s := newTestSubscriber(reader, time.Millisecond)

	var committedAtCall [][]int64
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	errCh := subscribe(ctx, s, func(_ context.Context, msg ibroker.Message) ibroker.Decision {
		mu.Lock()
		committedAtCall = append(committedAtCall, reader.committed())
		mu.Unlock()

		return ibroker.Commit
	})

	assert.Eventually(t, func() bool {
		return len(reader.committed()) == 2
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, []int64{7, 8}, reader.committed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]int64{nil, {7}}, committedAtCall)
}

func TestSubscriber_RetryRedeliversWithoutCommitting(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "payment.events", Partition: 1, Offset: 3}}}
	s := newTestSubscriber(reader, time.Millisecond)

	var calls int
	var committedAtCall [][]int64
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	errCh := subscribe(ctx, s, func(_ context.Context, msg ibroker.Message) ibroker.Decision {
		mu.Lock()
		defer mu.Unlock()
		calls++
		committedAtCall = append(committedAtCall, reader.committed())
		assert.Equal(t, int64(3), msg.Position.Offset)
		if calls < 3 {
			return ibroker.Retry
		}

		return ibroker.Commit
	})

	assert.Eventually(t, func() bool {
		return len(reader.committed()) == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
	assert.Equal(t, [][]int64{nil, nil, nil}, committedAtCall)
	assert.Equal(t, []int64{3}, reader.committed())
}

func TestSubscriber_ShutdownDuringBackoffLeavesOffsetUncommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "payment.events", Partition: 0, Offset: 11}}}
	s := newTestSubscriber(reader, time.Minute)

	called := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := subscribe(ctx, s, func(context.Context, ibroker.Message) ibroker.Decision {
		select {
		case called <- struct{}{}:
		default:
		}

		return ibroker.Retry
	})

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop during backoff")
	}
	assert.Empty(t, reader.committed())
}
