package iordereventrepo

import (
	"context"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
)

// IOrderEventRepository is an interface for the append-only order audit log.
type IOrderEventRepository interface {
	Insert(ctx context.Context, e orderevent.OrderEvent) error
	ListByOrderID(ctx context.Context, orderID string) ([]orderevent.OrderEvent, error)
}
