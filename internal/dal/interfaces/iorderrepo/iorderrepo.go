package iorderrepo

import (
	"context"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
)

// StatusUpdate carries the columns a transition rewrites.
type StatusUpdate struct {
	Status             order.Status
	CancelledAt        *time.Time
	CancellationReason string
	RefundRequired     bool
	UpdatedAt          time.Time
}

// IOrderRepository is an interface for order postgres repository.
// Get* methods return dalerr.ErrNotFound when no row matches; Insert returns
// dalerr.ErrDuplicate on an idempotency key collision.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	GetByID(ctx context.Context, id string) (order.Order, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (order.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (order.Order, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	Count(ctx context.Context, filter *order.QueryOrdersModel) (int, error)
}
