package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iordereventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderitemrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ioutboxrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iprocessedeventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	orderrepo "github.com/IsVohi/OrderFlow-sub000/internal/dal/repositories/order/postgres"
	ordereventrepo "github.com/IsVohi/OrderFlow-sub000/internal/dal/repositories/orderevent/postgres"
	orderitemrepo "github.com/IsVohi/OrderFlow-sub000/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/IsVohi/OrderFlow-sub000/internal/dal/repositories/outbox/postgres"
	processedeventrepo "github.com/IsVohi/OrderFlow-sub000/internal/dal/repositories/processedevent/postgres"
)

type unitOfWork struct {
	client             *postgres.Client
	tx                 pgx.Tx
	orderRepo          iorderrepo.IOrderRepository
	orderItemRepo      iorderitemrepo.IOrderItemRepository
	orderEventRepo     iordereventrepo.IOrderEventRepository
	outboxRepo         ioutboxrepo.IOutboxRepository
	processedEventRepo iprocessedeventrepo.IProcessedEventRepository
}

var _ iuow.UnitOfWork = (*unitOfWork)(nil)

// NewUnitOfWork returns a unit of work whose repositories run on the pool
// until Begin is called.
func NewUnitOfWork(client *postgres.Client) iuow.UnitOfWork {
	u := &unitOfWork{client: client}
	u.bind(client.Pool())

	return u
}

// NewFactory returns a factory producing units of work on client.
func NewFactory(client *postgres.Client) iuow.Factory {
	return func() iuow.UnitOfWork {
		return NewUnitOfWork(client)
	}
}

func (u *unitOfWork) bind(conn postgres.GenericConn) {
	u.orderRepo = orderrepo.NewPostgresOrderRepository(conn)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(conn)
	u.orderEventRepo = ordereventrepo.NewPostgresOrderEventRepository(conn)
	u.outboxRepo = outboxrepo.NewOutboxRepository(conn)
	u.processedEventRepo = processedeventrepo.NewPostgresProcessedEventRepository(conn)
}

func (u *unitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *unitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

func (u *unitOfWork) OrderEventRepository() iordereventrepo.IOrderEventRepository {
	return u.orderEventRepo
}

func (u *unitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

func (u *unitOfWork) ProcessedEventRepository() iprocessedeventrepo.IProcessedEventRepository {
	return u.processedEventRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errors.New("transaction already started")
	}

	tx, err := u.client.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	// Repositories are rebuilt on the transaction
	u.bind(tx)

	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Commit(ctx)
	u.release()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(ctx)
	u.release()
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (u *unitOfWork) release() {
	u.tx = nil
	u.bind(u.client.Pool())
}
