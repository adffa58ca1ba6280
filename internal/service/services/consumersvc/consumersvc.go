package consumersvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/processedevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/statemachine"
)

// DefaultConsumerGroup names the ledger scope of this service.
const DefaultConsumerGroup = "order-service"

type transitioner interface {
	ApplyTransition(
		ctx context.Context,
		work iuow.UnitOfWork,
		id string,
		action statemachine.Action,
		meta ordersvc.TransitionMeta,
	) (order.Order, bool, error)
}

type dedupCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

// ConsumerService applies inventory and payment events to orders exactly once
// per event id.
type ConsumerService struct {
	pgClient   *postgres.Client
	uowFactory iuow.Factory
	orders     transitioner
	cache      dedupCache
	group      string
	now        func() time.Time
}

// Option is a function that configures the ConsumerService.
type Option func(*ConsumerService)

// MustNewConsumerService creates a new ConsumerService.
func MustNewConsumerService(opts ...Option) *ConsumerService {
	s := &ConsumerService{
		group: DefaultConsumerGroup,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.orders == nil {
		panic("consumersvc: order service is required")
	}
	if s.pgClient == nil && s.uowFactory == nil {
		panic("consumersvc: either a postgres client or a unit of work factory is required")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the ConsumerService.
func WithPostgresClient(pgClient *postgres.Client) Option {
	return func(s *ConsumerService) {
		s.pgClient = pgClient
	}
}

// WithUnitOfWorkFactory overrides how units of work are opened.
func WithUnitOfWorkFactory(f iuow.Factory) Option {
	return func(s *ConsumerService) {
		s.uowFactory = f
	}
}

// WithOrderService sets the service that applies order transitions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderService(orders transitioner) Option {
	return func(s *ConsumerService) {
		s.orders = orders
	}
}

// WithDedupCache enables the processed-event cache in front of the ledger.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDedupCache(cache dedupCache) Option {
	return func(s *ConsumerService) {
		s.cache = cache
	}
}

// WithConsumerGroup sets the consumer group recorded in the ledger.
func WithConsumerGroup(group string) Option {
	return func(s *ConsumerService) {
		if group != "" {
			s.group = group
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ConsumerService) {
		s.now = now
	}
}

func (s *ConsumerService) newUOW() iuow.UnitOfWork {
	if s.uowFactory != nil {
		return s.uowFactory()
	}

	return uow.NewUnitOfWork(s.pgClient)
}

// ProcessMessage handles one delivered message and tells the transport
// whether to commit its position. Infrastructure failures return
// ibroker.Retry and leave no trace, so the redelivery starts from scratch.
func (s *ConsumerService) ProcessMessage(ctx context.Context, msg ibroker.Message) ibroker.Decision {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.ProcessMessage")
	defer span.End()

	env, err := event.Decode(msg.Value)
	if err != nil {
		slog.Error("Dropping undecodable message",
			"error", err,
			"topic", msg.Topic,
			"key", msg.Key)

		return ibroker.Commit
	}

	eventID := env.Metadata.EventID
	span.SetAttributes(
		attribute.String("event.id", eventID),
		attribute.String("event.type", env.Metadata.EventType.String()),
	)
	log := slog.With(
		"event_id", eventID,
		"event_type", env.Metadata.EventType.String(),
		"correlation_id", env.Metadata.CorrelationID,
	)

	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, eventID)
		if err != nil {
			log.Warn("Processed event cache unavailable", "error", err)
		} else if seen {
			log.Info("Skipping duplicate event (cache)")

			return ibroker.Commit
		}
	}

	processed, err := s.newUOW().ProcessedEventRepository().Exists(ctx, eventID)
	if err != nil {
		log.Error("Failed to check processed events", "error", err)

		return ibroker.Retry
	}
	if processed {
		log.Info("Skipping duplicate event")
		s.remember(ctx, log, eventID)

		return ibroker.Commit
	}

	outcome, err := s.applyOnce(ctx, env, msg)
	switch {
	case errors.Is(err, errAlreadyProcessed):
		log.Info("Skipping duplicate event")
	case errs.IsDomain(err):
		log.Warn("Rejecting event", "error", err)
		if err := s.markRejected(ctx, env, msg); err != nil {
			log.Error("Failed to record rejected event", "error", err)

			return ibroker.Retry
		}
	case err != nil:
		log.Error("Failed to process event", "error", err)

		return ibroker.Retry
	default:
		log.Info("Event processed", "outcome", string(outcome))
	}

	s.remember(ctx, log, eventID)

	return ibroker.Commit
}

var errAlreadyProcessed = errors.New("event already processed")

// applyOnce applies the event and records it in the ledger in one transaction.
func (s *ConsumerService) applyOnce(
	ctx context.Context,
	env event.Envelope,
	msg ibroker.Message,
) (processedevent.Outcome, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return "", err
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	processed, err := work.ProcessedEventRepository().Exists(ctx, env.Metadata.EventID)
	if err != nil {
		return "", err
	}
	if processed {
		return "", errAlreadyProcessed
	}

	outcome, err := s.dispatch(ctx, work, env)
	if err != nil {
		return "", err
	}

	err = work.ProcessedEventRepository().Insert(ctx, s.ledgerRow(env, msg, outcome))
	if errors.Is(err, dalerr.ErrDuplicate) {
		// A concurrent consumer recorded it first; its effect wins.
		return "", errAlreadyProcessed
	}
	if err != nil {
		return "", err
	}

	if err := work.Commit(ctx); err != nil {
		return "", err
	}

	return outcome, nil
}

// markRejected records a permanently failing event so it is never retried.
func (s *ConsumerService) markRejected(ctx context.Context, env event.Envelope, msg ibroker.Message) error {
	err := s.newUOW().ProcessedEventRepository().Insert(ctx, s.ledgerRow(env, msg, processedevent.OutcomeRejected))
	if errors.Is(err, dalerr.ErrDuplicate) {
		return nil
	}

	return err
}

func (s *ConsumerService) ledgerRow(
	env event.Envelope,
	msg ibroker.Message,
	outcome processedevent.Outcome,
) processedevent.ProcessedEvent {
	row := processedevent.ProcessedEvent{
		EventID:       env.Metadata.EventID,
		EventType:     env.Metadata.EventType.String(),
		ConsumerGroup: s.group,
		Topic:         msg.Topic,
		Outcome:       outcome,
		ProcessedAt:   s.now(),
	}
	if msg.Position != nil {
		partition, offset := msg.Position.Partition, msg.Position.Offset
		row.Partition = &partition
		row.Offset = &offset
	}

	return row
}

func (s *ConsumerService) remember(ctx context.Context, log *slog.Logger, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Remember(ctx, eventID); err != nil {
		log.Warn("Failed to remember processed event", "error", err)
	}
}
