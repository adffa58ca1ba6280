// Package memuow is an in-memory implementation of iuow.UnitOfWork used by
// service and worker tests. A transaction holds the store lock from Begin
// until Commit or Rollback, so concurrent units of work are serialized.
package memuow

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iordereventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderitemrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ioutboxrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iprocessedeventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderitem"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/processedevent"
)

// Op names a repository method for failure injection.
type Op string

const (
	OpBegin               Op = "uow.Begin"
	OpCommit              Op = "uow.Commit"
	OpOrderInsert         Op = "order.Insert"
	OpOrderGet            Op = "order.Get"
	OpOrderUpdateStatus   Op = "order.UpdateStatus"
	OpOrderQuery          Op = "order.Query"
	OpItemBulkInsert      Op = "orderitem.BulkInsert"
	OpOrderEventInsert    Op = "orderevent.Insert"
	OpOutboxInsert        Op = "outbox.Insert"
	OpOutboxClaim         Op = "outbox.ClaimUnpublished"
	OpOutboxMarkPublished Op = "outbox.MarkPublished"
	OpOutboxDelete        Op = "outbox.DeletePublishedBefore"
	OpProcessedExists     Op = "processed.Exists"
	OpProcessedInsert     Op = "processed.Insert"
	OpProcessedDelete     Op = "processed.DeleteProcessedBefore"
)

var errTxActive = errors.New("transaction already started")

type state struct {
	orders    map[string]order.Order
	items     []orderitem.OrderItem
	events    []orderevent.OrderEvent
	outbox    []outbox.Entry
	processed []processedevent.ProcessedEvent
	itemSeq   int64
	eventSeq  int64
	outboxSeq int64
}

func (s *state) clone() *state {
	c := &state{
		orders:    make(map[string]order.Order, len(s.orders)),
		items:     append([]orderitem.OrderItem(nil), s.items...),
		events:    append([]orderevent.OrderEvent(nil), s.events...),
		outbox:    append([]outbox.Entry(nil), s.outbox...),
		processed: append([]processedevent.ProcessedEvent(nil), s.processed...),
		itemSeq:   s.itemSeq,
		eventSeq:  s.eventSeq,
		outboxSeq: s.outboxSeq,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}

	return c
}

// Store is the shared in-memory database.
type Store struct {
	mu       sync.Mutex
	data     *state
	failMu   sync.Mutex
	failures map[Op]error
	commits  int
}

func NewStore() *Store {
	return &Store{
		data:     &state{orders: map[string]order.Order{}},
		failures: map[Op]error{},
	}
}

// FailOn makes every call of op return err until ClearFailures is called.
func (s *Store) FailOn(op Op, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[op] = err
}

func (s *Store) ClearFailures() {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures = map[Op]error{}
}

func (s *Store) fail(op Op) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()

	return s.failures[op]
}

// Factory returns an iuow.Factory bound to the store.
func (s *Store) Factory() iuow.Factory {
	return func() iuow.UnitOfWork {
		return s.NewUnitOfWork()
	}
}

func (s *Store) NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{store: s}
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commits
}

// Orders returns a snapshot of all orders.
func (s *Store) Orders() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

// Items returns a snapshot of all order items.
func (s *Store) Items() []orderitem.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]orderitem.OrderItem(nil), s.data.items...)
}

// OrderEvents returns a snapshot of the audit log.
func (s *Store) OrderEvents() []orderevent.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]orderevent.OrderEvent(nil), s.data.events...)
}

// Outbox returns a snapshot of the outbox.
func (s *Store) Outbox() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]outbox.Entry(nil), s.data.outbox...)
}

// Processed returns a snapshot of the deduplication ledger.
func (s *Store) Processed() []processedevent.ProcessedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]processedevent.ProcessedEvent(nil), s.data.processed...)
}

// SeedOrder stores o directly, bypassing transactions.
func (s *Store) SeedOrder(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[o.ID] = o
}

// SeedOutbox appends entries directly, assigning ids.
func (s *Store) SeedOutbox(entries ...outbox.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.data.outboxSeq++
		e.ID = s.data.outboxSeq
		s.data.outbox = append(s.data.outbox, e)
	}
}

// SeedProcessed appends ledger rows directly.
func (s *Store) SeedProcessed(rows ...processedevent.ProcessedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.processed = append(s.data.processed, rows...)
}

// UnitOfWork implements iuow.UnitOfWork over a Store.
type UnitOfWork struct {
	store *Store
	tx    *state
}

var _ iuow.UnitOfWork = (*UnitOfWork)(nil)

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errTxActive
	}
	if err := u.store.fail(OpBegin); err != nil {
		return err
	}

	u.store.mu.Lock()
	u.tx = u.store.data.clone()

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	if err := u.store.fail(OpCommit); err != nil {
		u.tx = nil
		u.store.mu.Unlock()

		return err
	}

	u.store.data = u.tx
	u.store.commits++
	u.tx = nil
	u.store.mu.Unlock()

	return nil
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	u.tx = nil
	u.store.mu.Unlock()

	return nil
}

// with runs fn against the transaction state, or against the committed state
// under the store lock when no transaction is open.
func (u *UnitOfWork) with(op Op, fn func(s *state) error) error {
	if err := u.store.fail(op); err != nil {
		return err
	}
	if u.tx != nil {
		return fn(u.tx)
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	return fn(u.store.data)
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return orderRepo{u}
}

func (u *UnitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return orderItemRepo{u}
}

func (u *UnitOfWork) OrderEventRepository() iordereventrepo.IOrderEventRepository {
	return orderEventRepo{u}
}

func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return outboxRepo{u}
}

func (u *UnitOfWork) ProcessedEventRepository() iprocessedeventrepo.IProcessedEventRepository {
	return processedRepo{u}
}

type orderRepo struct{ u *UnitOfWork }

func (r orderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	err := r.u.with(OpOrderInsert, func(s *state) error {
		if _, ok := s.orders[o.ID]; ok {
			return dalerr.ErrDuplicate
		}
		for _, existing := range s.orders {
			if existing.IdempotencyKey == o.IdempotencyKey {
				return dalerr.ErrDuplicate
			}
		}
		stored := o
		stored.OrderItems = nil
		s.orders[o.ID] = stored

		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	o.OrderItems = nil

	return o, nil
}

func (r orderRepo) get(op Op, match func(order.Order) bool) (order.Order, error) {
	var found order.Order
	err := r.u.with(op, func(s *state) error {
		for _, o := range s.orders {
			if match(o) {
				found = o
				return nil
			}
		}

		return dalerr.ErrNotFound
	})

	return found, err
}

func (r orderRepo) GetByID(_ context.Context, id string) (order.Order, error) {
	return r.get(OpOrderGet, func(o order.Order) bool { return o.ID == id })
}

func (r orderRepo) GetByIDForUpdate(ctx context.Context, id string) (order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r orderRepo) GetByIdempotencyKey(_ context.Context, key string) (order.Order, error) {
	return r.get(OpOrderGet, func(o order.Order) bool { return o.IdempotencyKey == key })
}

func (r orderRepo) UpdateStatus(_ context.Context, id string, upd iorderrepo.StatusUpdate) error {
	return r.u.with(OpOrderUpdateStatus, func(s *state) error {
		o, ok := s.orders[id]
		if !ok {
			return dalerr.ErrNotFound
		}
		o.Status = upd.Status
		o.RefundRequired = upd.RefundRequired
		o.UpdatedAt = upd.UpdatedAt
		if upd.CancelledAt != nil {
			at := *upd.CancelledAt
			o.CancelledAt = &at
			o.CancellationReason = upd.CancellationReason
		}
		s.orders[id] = o

		return nil
	})
}

func (r orderRepo) filtered(s *state, filter *order.QueryOrdersModel) []order.Order {
	out := []order.Order{}
	for _, o := range s.orders {
		if filter != nil && filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter != nil && filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func (r orderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	var out []order.Order
	err := r.u.with(OpOrderQuery, func(s *state) error {
		out = r.filtered(s, filter)
		if filter == nil {
			return nil
		}
		if filter.Offset > 0 {
			if filter.Offset >= len(out) {
				out = []order.Order{}
				return nil
			}
			out = out[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(out) {
			out = out[:filter.Limit]
		}

		return nil
	})

	return out, err
}

func (r orderRepo) Count(_ context.Context, filter *order.QueryOrdersModel) (int, error) {
	var n int
	err := r.u.with(OpOrderQuery, func(s *state) error {
		n = len(r.filtered(s, filter))
		return nil
	})

	return n, err
}

type orderItemRepo struct{ u *UnitOfWork }

func (r orderItemRepo) BulkInsert(_ context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	out := make([]orderitem.OrderItem, 0, len(items))
	err := r.u.with(OpItemBulkInsert, func(s *state) error {
		for _, it := range items {
			if _, ok := s.orders[it.OrderID]; !ok {
				return errors.New("order_items_order_id_fkey violation")
			}
			s.itemSeq++
			it.ID = s.itemSeq
			s.items = append(s.items, it)
			out = append(out, it)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r orderItemRepo) Query(_ context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	out := []orderitem.OrderItem{}
	err := r.u.with(OpOrderQuery, func(s *state) error {
		for _, it := range s.items {
			if filter != nil && len(filter.OrderIDs) > 0 && !slices.Contains(filter.OrderIDs, it.OrderID) {
				continue
			}
			out = append(out, it)
		}

		return nil
	})

	return out, err
}

type orderEventRepo struct{ u *UnitOfWork }

func (r orderEventRepo) Insert(_ context.Context, e orderevent.OrderEvent) error {
	return r.u.with(OpOrderEventInsert, func(s *state) error {
		s.eventSeq++
		e.ID = s.eventSeq
		s.events = append(s.events, e)

		return nil
	})
}

func (r orderEventRepo) ListByOrderID(_ context.Context, orderID string) ([]orderevent.OrderEvent, error) {
	out := []orderevent.OrderEvent{}
	err := r.u.with(OpOrderQuery, func(s *state) error {
		for _, e := range s.events {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}

		return nil
	})

	return out, err
}

type outboxRepo struct{ u *UnitOfWork }

func (r outboxRepo) Insert(_ context.Context, e outbox.Entry) error {
	return r.u.with(OpOutboxInsert, func(s *state) error {
		for _, existing := range s.outbox {
			if existing.EventID == e.EventID {
				return dalerr.ErrDuplicate
			}
		}
		s.outboxSeq++
		e.ID = s.outboxSeq
		s.outbox = append(s.outbox, e)

		return nil
	})
}

func (r outboxRepo) ClaimUnpublished(_ context.Context, limit int) ([]outbox.Entry, error) {
	var out []outbox.Entry
	err := r.u.with(OpOutboxClaim, func(s *state) error {
		pending := make([]outbox.Entry, 0)
		for _, e := range s.outbox {
			if !e.Published {
				pending = append(pending, e)
			}
		}
		sort.SliceStable(pending, func(i, j int) bool {
			if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
				return pending[i].ID < pending[j].ID
			}

			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		})
		if limit > 0 && len(pending) > limit {
			pending = pending[:limit]
		}
		out = pending

		return nil
	})

	return out, err
}

func (r outboxRepo) MarkPublished(_ context.Context, ids []int64, at time.Time) error {
	return r.u.with(OpOutboxMarkPublished, func(s *state) error {
		for i := range s.outbox {
			if slices.Contains(ids, s.outbox[i].ID) {
				published := at
				s.outbox[i].Published = true
				s.outbox[i].PublishedAt = &published
			}
		}

		return nil
	})
}

func (r outboxRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.u.with(OpOutboxDelete, func(s *state) error {
		kept := s.outbox[:0:0]
		for _, e := range s.outbox {
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		s.outbox = kept

		return nil
	})

	return n, err
}

type processedRepo struct{ u *UnitOfWork }

func (r processedRepo) Exists(_ context.Context, eventID string) (bool, error) {
	var found bool
	err := r.u.with(OpProcessedExists, func(s *state) error {
		for _, p := range s.processed {
			if p.EventID == eventID {
				found = true
				break
			}
		}

		return nil
	})

	return found, err
}

func (r processedRepo) Insert(_ context.Context, e processedevent.ProcessedEvent) error {
	return r.u.with(OpProcessedInsert, func(s *state) error {
		for _, p := range s.processed {
			if p.EventID == e.EventID {
				return dalerr.ErrDuplicate
			}
			if samePosition(p, e) {
				return dalerr.ErrDuplicate
			}
		}
		s.processed = append(s.processed, e)

		return nil
	})
}

func (r processedRepo) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.u.with(OpProcessedDelete, func(s *state) error {
		kept := s.processed[:0:0]
		for _, p := range s.processed {
			if p.ProcessedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, p)
		}
		s.processed = kept

		return nil
	})

	return n, err
}

func samePosition(a, b processedevent.ProcessedEvent) bool {
	if a.Partition == nil || a.Offset == nil || b.Partition == nil || b.Offset == nil {
		return false
	}

	return a.ConsumerGroup == b.ConsumerGroup && a.Topic == b.Topic &&
		*a.Partition == *b.Partition && *a.Offset == *b.Offset
}
