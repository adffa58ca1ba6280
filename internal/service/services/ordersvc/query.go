package ordersvc

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderitem"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GetOrder returns one order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.GetOrder")
	defer span.End()

	work := s.newUOW()

	o, err := work.OrderRepository().GetByID(ctx, id)
	if errors.Is(err, dalerr.ErrNotFound) {
		return order.Order{}, errs.OrderNotFound(id)
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	if err := s.attachItems(ctx, work, []*order.Order{&o}); err != nil {
		return order.Order{}, err
	}

	return o, nil
}

// ListOrders returns one page of orders with their items and the total number
// of orders matching the filter.
func (s *OrderService) ListOrders(
	ctx context.Context,
	filter order.QueryOrdersModel,
) ([]order.Order, int, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.ListOrders")
	defer span.End()

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, errs.Validation("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, &filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}

	total, err := work.OrderRepository().Count(ctx, &filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	refs := make([]*order.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := s.attachItems(ctx, work, refs); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListOrderEvents returns the audit log of one order, oldest first.
func (s *OrderService) ListOrderEvents(ctx context.Context, id string) ([]orderevent.OrderEvent, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.ListOrderEvents")
	defer span.End()

	work := s.newUOW()

	if _, err := work.OrderRepository().GetByID(ctx, id); err != nil {
		if errors.Is(err, dalerr.ErrNotFound) {
			return nil, errs.OrderNotFound(id)
		}

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	events, err := work.OrderEventRepository().ListByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list order events: %w", err)
	}

	return events, nil
}

func (s *OrderService) attachItems(ctx context.Context, work iuow.UnitOfWork, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	filter := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		filter.OrderIDs = append(filter.OrderIDs, o.ID)
	}

	items, err := work.OrderItemRepository().Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}

	for _, o := range orders {
		o.OrderItems = []orderitem.OrderItem{}
		for _, item := range items {
			if item.OrderID == o.ID {
				o.OrderItems = append(o.OrderItems, item)
			}
		}
	}

	return nil
}
