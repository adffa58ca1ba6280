package ordersvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/inventory"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow/memuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type stubStock struct {
	err   error
	calls int
}

func (s *stubStock) ValidateStock(context.Context, []inventory.StockItem) error {
	s.calls++

	return s.err
}

func newService(t *testing.T, opts ...Option) (*OrderService, *memuow.Store) {
	t.Helper()

	store := memuow.NewStore()
	base := []Option{
		WithUnitOfWorkFactory(store.Factory()),
		WithClock(func() time.Time { return fixedNow }),
	}

	return MustNewOrderService(append(base, opts...)...), store
}

func validCommand(key string) order.CreateOrderCommand {
	return order.CreateOrderCommand{
		IdempotencyKey: key,
		CustomerID:     "customer-1",
		Currency:       "USD",
		CorrelationID:  "corr-1",
		ShippingAddress: order.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Items: []order.CreateOrderItem{
			{ProductID: "p-1", ProductName: "Mug", SellerID: "s-1", Quantity: 3, UnitPrice: "19.99"},
			{ProductID: "p-2", ProductName: "Coaster", SellerID: "s-1", Quantity: 1, UnitPrice: "5.00", Currency: "USD"},
		},
	}
}

func decodeOutbox(t *testing.T, e outbox.Entry) (event.Envelope, event.OrderPayload) {
	t.Helper()

	env, err := event.Decode(e.Payload)
	require.NoError(t, err)

	var p event.OrderPayload
	require.NoError(t, env.DecodePayload(&p))

	return env, p
}

func TestCreateOrder_WritesOrderItemsAuditAndOutbox(t *testing.T) {
	svc, store := newService(t)

	o, created, err := svc.CreateOrder(context.Background(), validCommand("key-1"))
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "64.97", o.TotalAmount.StringFixed(2))
	assert.Len(t, o.OrderItems, 2)

	require.Len(t, store.Orders(), 1)
	assert.Len(t, store.Items(), 2)

	audit := store.OrderEvents()
	require.Len(t, audit, 1)
	assert.Equal(t, event.OrderCreated.String(), audit[0].EventType)

	entries := store.Outbox()
	require.Len(t, entries, 1)
	assert.Equal(t, o.ID, entries[0].AggregateID)
	assert.Equal(t, DefaultTopic, entries[0].Topic)
	assert.False(t, entries[0].Published)

	env, payload := decodeOutbox(t, entries[0])
	assert.Equal(t, event.OrderCreated, env.Metadata.EventType)
	assert.Equal(t, "corr-1", env.Metadata.CorrelationID)
	assert.Equal(t, entries[0].EventID, env.Metadata.EventID)
	assert.Equal(t, o.ID, payload.OrderID)
	assert.Equal(t, "64.97", payload.TotalAmount.StringFixed(2))
	assert.Len(t, payload.Items, 2)
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	first, created, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.OrderItems, 2)
	assert.Len(t, store.Orders(), 1)
	assert.Len(t, store.Outbox(), 1)
}

func TestCreateOrder_ConcurrentSameKey(t *testing.T) {
	svc, store := newService(t)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, err := svc.CreateOrder(context.Background(), validCommand("key-race"))
			assert.NoError(t, err)
			ids[i] = o.ID
		}(i)
	}
	wg.Wait()

	require.Len(t, store.Orders(), 1)
	for _, id := range ids {
		assert.Equal(t, store.Orders()[0].ID, id)
	}
	assert.Len(t, store.Outbox(), 1)
}

func TestCreateOrder_StockUnavailableWritesNothing(t *testing.T) {
	stock := &stubStock{err: errs.Validation("insufficient stock for products: p-1")}
	svc, store := newService(t, WithStockValidator(stock))

	_, _, err := svc.CreateOrder(context.Background(), validCommand("key-1"))

	assert.ErrorIs(t, err, errs.ErrValidationFailed)
	assert.Equal(t, 1, stock.calls)
	assert.Empty(t, store.Orders())
	assert.Empty(t, store.Outbox())
}

func TestCreateOrder_ReplaySkipsStockCheck(t *testing.T) {
	stock := &stubStock{}
	svc, _ := newService(t, WithStockValidator(stock))
	ctx := context.Background()

	_, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)
	_, _, err = svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, stock.calls)
}

func TestCreateOrder_OutboxFailureRollsBackEverything(t *testing.T) {
	svc, store := newService(t)
	store.FailOn(memuow.OpOutboxInsert, errors.New("disk full"))

	_, _, err := svc.CreateOrder(context.Background(), validCommand("key-1"))

	require.Error(t, err)
	assert.Empty(t, store.Orders())
	assert.Empty(t, store.Items())
	assert.Empty(t, store.OrderEvents())
	assert.Empty(t, store.Outbox())
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *order.CreateOrderCommand)
	}{
		{"missing key", func(c *order.CreateOrderCommand) { c.IdempotencyKey = "" }},
		{"missing customer", func(c *order.CreateOrderCommand) { c.CustomerID = " " }},
		{"bad currency", func(c *order.CreateOrderCommand) { c.Currency = "XXX" }},
		{"no items", func(c *order.CreateOrderCommand) { c.Items = nil }},
		{"zero quantity", func(c *order.CreateOrderCommand) { c.Items[0].Quantity = 0 }},
		{"bad price", func(c *order.CreateOrderCommand) { c.Items[0].UnitPrice = "abc" }},
		{"negative price", func(c *order.CreateOrderCommand) { c.Items[0].UnitPrice = "-1.00" }},
		{"sub-cent price", func(c *order.CreateOrderCommand) { c.Items[0].UnitPrice = "1.00001" }},
		{"mixed currency", func(c *order.CreateOrderCommand) { c.Items[1].Currency = "EUR" }},
		{"missing address", func(c *order.CreateOrderCommand) { c.ShippingAddress.City = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			cmd := validCommand("key-1")
			tt.mutate(&cmd)

			_, _, err := svc.CreateOrder(context.Background(), cmd)

			assert.ErrorIs(t, err, errs.ErrValidationFailed)
			assert.Empty(t, store.Orders())
		})
	}
}

func TestCreateOrder_PriceScale(t *testing.T) {
	svc, _ := newService(t)
	cmd := validCommand("key-1")
	cmd.Items[0].UnitPrice = "19.990000"

	_, _, err := svc.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	cmd = validCommand("key-2")
	cmd.Items[0].UnitPrice = "19.99001"
	_, _, err = svc.CreateOrder(context.Background(), cmd)
	assert.ErrorIs(t, err, errs.ErrValidationFailed)
}

func TestTransitions_HappyPath(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	o, err = svc.Confirm(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, o.Status)

	o, err = svc.Pay(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)

	o, err = svc.Fulfill(ctx, o.ID, TransitionMeta{CorrelationID: "corr-1"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusFulfilled, o.Status)

	var auditTypes []string
	for _, e := range store.OrderEvents() {
		auditTypes = append(auditTypes, e.EventType)
	}
	assert.Equal(t, []string{"order.created", "order.confirmed", "order.paid", "order.fulfilled"}, auditTypes)

	entries := store.Outbox()
	require.Len(t, entries, 2)
	assert.Equal(t, event.OrderFulfilled.String(), entries[1].EventType)
}

func TestFulfill_FromPendingIsRejected(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	_, err = svc.Fulfill(ctx, o.ID, TransitionMeta{})

	require.ErrorIs(t, err, errs.ErrInvalidOrderState)
	assert.Contains(t, err.Error(), "PENDING")
	assert.Contains(t, err.Error(), "fulfill")
	assert.Equal(t, order.StatusPending, store.Orders()[0].Status)
	assert.Len(t, store.OrderEvents(), 1)
	assert.Len(t, store.Outbox(), 1)
}

func TestCancel_PaidOrderRequiresRefund(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)

	o, err = svc.Cancel(ctx, o.ID, TransitionMeta{Reason: "customer request", Actor: "support"})
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.True(t, o.RefundRequired)
	require.NotNil(t, o.CancelledAt)
	assert.Equal(t, "customer request", o.CancellationReason)

	entries := store.Outbox()
	require.Len(t, entries, 2)
	_, payload := decodeOutbox(t, entries[1])
	assert.Equal(t, "CANCELLED", payload.Status)
	assert.Equal(t, "PAID", payload.PreviousStatus)
	assert.True(t, payload.RefundRequired)
	assert.Equal(t, "customer request", payload.Reason)
	assert.Equal(t, "support", payload.Actor)
}

func TestCancel_PendingOrderNeedsNoRefund(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	o, err = svc.Cancel(ctx, o.ID, TransitionMeta{Reason: "changed mind", Actor: "customer"})
	require.NoError(t, err)
	assert.False(t, o.RefundRequired)
}

func TestCancel_RequiresReasonAndActor(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, o.ID, TransitionMeta{Actor: "support"})
	assert.ErrorIs(t, err, errs.ErrValidationFailed)

	_, err = svc.Cancel(ctx, o.ID, TransitionMeta{Reason: "fraud"})
	assert.ErrorIs(t, err, errs.ErrValidationFailed)
}

func TestCancel_TwiceFromApiIsRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	meta := TransitionMeta{Reason: "fraud", Actor: "risk"}
	_, err = svc.Cancel(ctx, o.ID, meta)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, o.ID, meta)
	assert.ErrorIs(t, err, errs.ErrInvalidOrderState)
}

func TestMarkPaymentFailed_IsIdempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)

	meta := TransitionMeta{Reason: "card declined"}
	o, err = svc.MarkPaymentFailed(ctx, o.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentFailed, o.Status)

	o, err = svc.MarkPaymentFailed(ctx, o.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentFailed, o.Status)

	entries := store.Outbox()
	require.Len(t, entries, 2)
	assert.Equal(t, event.OrderCancelled.String(), entries[1].EventType)
	_, payload := decodeOutbox(t, entries[1])
	assert.False(t, payload.RefundRequired)
}

func TestTransition_UnknownOrder(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Confirm(context.Background(), "00000000-0000-0000-0000-000000000000", TransitionMeta{})

	assert.ErrorIs(t, err, errs.ErrOrderNotFound)
}

func TestTransition_InfrastructureErrorIsNotDomain(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	store.FailOn(memuow.OpOrderUpdateStatus, errors.New("connection reset"))
	_, err = svc.Confirm(ctx, o.ID, TransitionMeta{})

	require.Error(t, err)
	assert.False(t, errs.IsDomain(err))
	store.ClearFailures()
	assert.Equal(t, order.StatusPending, store.Orders()[0].Status)
}

func TestGetOrder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, got.OrderItems, 2)

	_, err = svc.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrOrderNotFound)
}

func TestListOrders_PaginatesAndCounts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, key := range []string{"k-1", "k-2", "k-3"} {
		_, _, err := svc.CreateOrder(ctx, validCommand(key))
		require.NoError(t, err)
	}

	page, total, err := svc.ListOrders(ctx, order.QueryOrdersModel{CustomerID: "customer-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
	assert.Len(t, page[0].OrderItems, 2)

	page, _, err = svc.ListOrders(ctx, order.QueryOrdersModel{CustomerID: "customer-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, total, err = svc.ListOrders(ctx, order.QueryOrdersModel{Status: order.StatusPaid})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = svc.ListOrders(ctx, order.QueryOrdersModel{Status: "SHIPPED"})
	assert.ErrorIs(t, err, errs.ErrValidationFailed)
}

func TestListOrderEvents(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, validCommand("key-1"))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, o.ID, TransitionMeta{})
	require.NoError(t, err)

	events, err := svc.ListOrderEvents(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "order.confirmed", events[1].EventType)

	_, err = svc.ListOrderEvents(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrOrderNotFound)
}
