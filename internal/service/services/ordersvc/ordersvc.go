package ordersvc

import (
	"context"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/inventory"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
)

// DefaultTopic is the topic order events are published to.
const DefaultTopic = "order.events"

// OrderService is a service for managing orders.
type OrderService struct {
	pgClient   *postgres.Client
	uowFactory iuow.Factory
	stock      stockValidator
	source     event.Source
	topic      string
	now        func() time.Time
}

type stockValidator interface {
	ValidateStock(ctx context.Context, items []inventory.StockItem) error
}

func (s *OrderService) newUOW() iuow.UnitOfWork {
	if s.uowFactory != nil {
		return s.uowFactory()
	}

	return uow.NewUnitOfWork(s.pgClient)
}

// Option is a function that configures the OrderService.
type Option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...Option) *OrderService {
	s := &OrderService{
		source: event.Source{Service: "order-service", Version: "1.0.0"},
		topic:  DefaultTopic,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pgClient == nil && s.uowFactory == nil {
		panic("ordersvc: either a postgres client or a unit of work factory is required")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
func WithPostgresClient(pgClient *postgres.Client) Option {
	return func(s *OrderService) {
		s.pgClient = pgClient
	}
}

// WithUnitOfWorkFactory overrides how units of work are opened.
func WithUnitOfWorkFactory(f iuow.Factory) Option {
	return func(s *OrderService) {
		s.uowFactory = f
	}
}

// WithStockValidator enables the stock precondition on creation.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStockValidator(v stockValidator) Option {
	return func(s *OrderService) {
		s.stock = v
	}
}

// WithEventSource sets the source stamped on produced events.
func WithEventSource(src event.Source) Option {
	return func(s *OrderService) {
		s.source = src
	}
}

// WithOrderTopic sets the topic of produced order events.
func WithOrderTopic(topic string) Option {
	return func(s *OrderService) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}
