package iuow

import (
	"context"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iordereventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderitemrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ioutboxrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iprocessedeventrepo"
)

// UnitOfWork groups repository calls into one transaction. Repositories
// obtained after Begin run on that transaction; before Begin they run on the
// pool. Rollback after Commit is a no-op, so it is safe to defer.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
	OrderEventRepository() iordereventrepo.IOrderEventRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
	ProcessedEventRepository() iprocessedeventrepo.IProcessedEventRepository
}

// Factory opens a fresh unit of work.
type Factory func() UnitOfWork
