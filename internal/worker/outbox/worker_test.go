package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow/memuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []ibroker.Message
	failOn map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, msg ibroker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOn[msg.Headers[event.HeaderEventID]] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)

	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

func (p *fakePublisher) messages() []ibroker.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]ibroker.Message(nil), p.sent...)
}

func seed(t *testing.T, store *memuow.Store, n int, age time.Duration) []outbox.Entry {
	t.Helper()

	orderIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		orderIDs = append(orderIDs, fmt.Sprintf("order-%03d", i))
	}

	return seedFor(t, store, age, orderIDs...)
}

// seedFor adds one entry per order id, oldest first.
func seedFor(t *testing.T, store *memuow.Store, age time.Duration, orderIDs ...string) []outbox.Entry {
	t.Helper()

	entries := make([]outbox.Entry, 0, len(orderIDs))
	for i, orderID := range orderIDs {
		env, err := event.New(event.OrderCreated, event.OrderPayload{OrderID: orderID}, event.Source{Service: "test"}, "corr-1", "", fixedNow)
		require.NoError(t, err)
		raw, err := env.Marshal()
		require.NoError(t, err)

		entries = append(entries, outbox.Entry{
			EventID:       env.Metadata.EventID,
			EventType:     event.OrderCreated.String(),
			AggregateType: "order",
			AggregateID:   orderID,
			Topic:         "order.events",
			Payload:       raw,
			CreatedAt:     fixedNow.Add(-age).Add(time.Duration(i) * time.Millisecond),
		})
	}
	store.SeedOutbox(entries...)

	return entries
}

func newWorker(store *memuow.Store, pub ibroker.Publisher) *Worker {
	return NewWorker(store.Factory(), pub, WithClock(func() time.Time { return fixedNow }))
}

func unpublished(store *memuow.Store) int {
	n := 0
	for _, e := range store.Outbox() {
		if !e.Published {
			n++
		}
	}

	return n
}

func TestRunOnce_PublishesInBatchesOfHundred(t *testing.T) {
	store := memuow.NewStore()
	pub := &fakePublisher{}
	seed(t, store, 150, time.Second)
	w := newWorker(store, pub)
	ctx := context.Background()

	res, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 100, Published: 100}, res)
	assert.Equal(t, 50, unpublished(store))

	res, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 50, Published: 50}, res)
	assert.Zero(t, unpublished(store))

	res, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)

	sent := pub.messages()
	require.Len(t, sent, 150)
	assert.Equal(t, "order-000", sent[0].Key)
	assert.Equal(t, "order-149", sent[149].Key)
}

func TestRunOnce_FailedEntryStaysUnpublished(t *testing.T) {
	store := memuow.NewStore()
	entries := seed(t, store, 5, time.Second)
	pub := &fakePublisher{failOn: map[string]bool{entries[2].EventID: true}}
	w := newWorker(store, pub)
	ctx := context.Background()

	res, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 5, Published: 4, Failed: 1}, res)

	for _, e := range store.Outbox() {
		if e.EventID == entries[2].EventID {
			assert.False(t, e.Published)
			assert.Nil(t, e.PublishedAt)
			continue
		}
		assert.True(t, e.Published)
		require.NotNil(t, e.PublishedAt)
		assert.Equal(t, fixedNow, *e.PublishedAt)
	}

	pub.failOn = nil
	res, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 1, Published: 1}, res)
	assert.Zero(t, unpublished(store))
}

func TestRunOnce_FailureHoldsBackLaterEntriesOfSameAggregate(t *testing.T) {
	store := memuow.NewStore()
	entries := seedFor(t, store, time.Second, "order-a", "order-b", "order-a", "order-a")
	pub := &fakePublisher{failOn: map[string]bool{entries[0].EventID: true}}
	w := newWorker(store, pub)
	ctx := context.Background()

	res, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 4, Published: 1, Failed: 1, Deferred: 2}, res)

	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "order-b", sent[0].Key)
	assert.Equal(t, 3, unpublished(store))

	pub.failOn = nil
	res, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 3, Published: 3}, res)

	var order []string
	for _, m := range pub.messages()[1:] {
		order = append(order, m.Headers[event.HeaderEventID])
	}
	assert.Equal(t, []string{entries[0].EventID, entries[2].EventID, entries[3].EventID}, order)
}

func TestRunOnce_SetsKeyAndHeaders(t *testing.T) {
	store := memuow.NewStore()
	entries := seed(t, store, 1, time.Second)
	pub := &fakePublisher{}

	_, err := newWorker(store, pub).RunOnce(context.Background())
	require.NoError(t, err)

	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "order.events", sent[0].Topic)
	assert.Equal(t, "order-000", sent[0].Key)
	assert.Equal(t, entries[0].Payload, sent[0].Value)
	assert.Equal(t, "corr-1", sent[0].Headers[event.HeaderCorrelationID])
	assert.Equal(t, event.Version, sent[0].Headers[event.HeaderEventVersion])
	assert.Equal(t, entries[0].EventID, sent[0].Headers[event.HeaderEventID])
	assert.Equal(t, "order.created", sent[0].Headers[event.HeaderEventType])
}

func TestRunOnce_MarkFailureKeepsEverythingUnpublished(t *testing.T) {
	store := memuow.NewStore()
	seed(t, store, 3, time.Second)
	store.FailOn(memuow.OpOutboxMarkPublished, errors.New("connection reset"))

	_, err := newWorker(store, &fakePublisher{}).RunOnce(context.Background())

	require.Error(t, err)
	store.ClearFailures()
	assert.Equal(t, 3, unpublished(store))
}

func TestRunOnce_ClaimFailure(t *testing.T) {
	store := memuow.NewStore()
	seed(t, store, 3, time.Second)
	store.FailOn(memuow.OpOutboxClaim, errors.New("connection reset"))
	pub := &fakePublisher{}

	_, err := newWorker(store, pub).RunOnce(context.Background())

	require.Error(t, err)
	assert.Empty(t, pub.messages())
}

func TestRunOnce_StuckEntriesStillPublish(t *testing.T) {
	store := memuow.NewStore()
	seed(t, store, 2, time.Hour)

	res, err := newWorker(store, &fakePublisher{}).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
}

func TestStartStop(t *testing.T) {
	store := memuow.NewStore()
	seed(t, store, 3, time.Second)
	pub := &fakePublisher{}
	w := NewWorker(store.Factory(), pub, WithPollInterval(10*time.Millisecond))

	go w.Start(context.Background())

	assert.Eventually(t, func() bool {
		return len(pub.messages()) == 3
	}, time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
}
