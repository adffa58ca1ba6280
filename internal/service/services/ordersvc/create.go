package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/inventory"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/currency"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderitem"
)

const maxIdempotencyKeyLen = 255

// priceScale matches the NUMERIC(19,4) money columns.
const priceScale = 4

// CreateOrder creates an order with its items, its audit record and its
// order.created outbox entry in one transaction. Repeating a request with the
// same idempotency key returns the original order and created=false.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	cmd order.CreateOrderCommand,
) (o order.Order, created bool, err error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.CreateOrder")
	defer span.End()

	draft, err := s.buildOrder(cmd)
	if err != nil {
		return order.Order{}, false, err
	}

	if existing, found, err := s.findByIdempotencyKey(ctx, s.newUOW(), draft.IdempotencyKey); err != nil {
		return order.Order{}, false, err
	} else if found {
		slog.Info("Idempotent replay of order creation",
			"order_id", existing.ID,
			"idempotency_key", draft.IdempotencyKey)

		return existing, false, nil
	}

	if s.stock != nil {
		items := make([]inventory.StockItem, 0, len(draft.OrderItems))
		for _, it := range draft.OrderItems {
			items = append(items, inventory.StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		if err := s.stock.ValidateStock(ctx, items); err != nil {
			return order.Order{}, false, err
		}
	}

	o, created, err = s.insertOrder(ctx, draft, cmd.CorrelationID)
	if errors.Is(err, dalerr.ErrDuplicate) {
		// A concurrent request with the same key won the insert.
		existing, found, findErr := s.findByIdempotencyKey(ctx, s.newUOW(), draft.IdempotencyKey)
		if findErr != nil {
			return order.Order{}, false, findErr
		}
		if found {
			return existing, false, nil
		}
	}
	if err != nil {
		return order.Order{}, false, err
	}

	if created {
		slog.Info("Order created",
			"order_id", o.ID,
			"customer_id", o.CustomerID,
			"total_amount", o.TotalAmount.String(),
			"currency", o.Currency.String())
	}

	return o, created, nil
}

func (s *OrderService) insertOrder(
	ctx context.Context,
	draft order.Order,
	correlationID string,
) (order.Order, bool, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, false, err
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	if existing, found, err := s.findByIdempotencyKey(ctx, work, draft.IdempotencyKey); err != nil {
		return order.Order{}, false, err
	} else if found {
		return existing, false, nil
	}

	stored, err := work.OrderRepository().Insert(ctx, draft)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("failed to insert order: %w", err)
	}

	items, err := work.OrderItemRepository().BulkInsert(ctx, draft.OrderItems)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("failed to insert order items: %w", err)
	}
	stored.OrderItems = items

	if err := s.record(ctx, work, emission{
		audit:         event.OrderCreated,
		outbox:        event.OrderCreated,
		payload:       toPayload(stored, "", "", "", draft.CreatedAt),
		correlationID: correlationID,
	}); err != nil {
		return order.Order{}, false, err
	}

	if err := work.Commit(ctx); err != nil {
		return order.Order{}, false, err
	}

	return stored, true, nil
}

func (s *OrderService) findByIdempotencyKey(
	ctx context.Context,
	work iuow.UnitOfWork,
	key string,
) (order.Order, bool, error) {
	o, err := work.OrderRepository().GetByIdempotencyKey(ctx, key)
	if errors.Is(err, dalerr.ErrNotFound) {
		return order.Order{}, false, nil
	}
	if err != nil {
		return order.Order{}, false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	if err := s.attachItems(ctx, work, []*order.Order{&o}); err != nil {
		return order.Order{}, false, err
	}

	return o, true, nil
}

// buildOrder validates cmd and turns it into a PENDING order with a fresh id.
func (s *OrderService) buildOrder(cmd order.CreateOrderCommand) (order.Order, error) {
	key := strings.TrimSpace(cmd.IdempotencyKey)
	switch {
	case key == "":
		return order.Order{}, errs.Validation("idempotency key is required")
	case len(key) > maxIdempotencyKeyLen:
		return order.Order{}, errs.Validation("idempotency key must be at most %d characters", maxIdempotencyKeyLen)
	case strings.TrimSpace(cmd.CustomerID) == "":
		return order.Order{}, errs.Validation("customerId is required")
	case len(cmd.Items) == 0:
		return order.Order{}, errs.Validation("at least one item is required")
	}

	cur, err := currency.ParseCurrency(cmd.Currency)
	if err != nil {
		return order.Order{}, errs.Validation("unsupported currency %q", cmd.Currency)
	}

	addr := cmd.ShippingAddress
	if addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return order.Order{}, errs.Validation("shipping address requires line1, city, postalCode and country")
	}

	now := s.now()
	id := uuid.NewString()

	items := make([]orderitem.OrderItem, 0, len(cmd.Items))
	for i, it := range cmd.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return order.Order{}, errs.Validation("items[%d]: productId is required", i)
		}
		if it.Quantity < 1 {
			return order.Order{}, errs.Validation("items[%d]: quantity must be at least 1", i)
		}

		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return order.Order{}, errs.Validation("items[%d]: invalid unit price %q", i, it.UnitPrice)
		}
		if price.IsNegative() {
			return order.Order{}, errs.Validation("items[%d]: unit price must not be negative", i)
		}
		if !price.Equal(price.Round(priceScale)) {
			return order.Order{}, errs.Validation("items[%d]: unit price has more than %d decimal places", i, priceScale)
		}

		itemCur := cur
		if it.Currency != "" {
			itemCur, err = currency.ParseCurrency(it.Currency)
			if err != nil || itemCur != cur {
				return order.Order{}, errs.Validation("items[%d]: currency must match order currency %s", i, cur)
			}
		}

		items = append(items, orderitem.OrderItem{
			OrderID:     id,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SellerID:    it.SellerID,
			Quantity:    it.Quantity,
			UnitPrice:   price,
			Currency:    itemCur,
			CreatedAt:   now,
		})
	}

	return order.Order{
		ID:              id,
		CustomerID:      cmd.CustomerID,
		TotalAmount:     order.CalculateTotal(items),
		Currency:        cur,
		Status:          order.StatusPending,
		IdempotencyKey:  key,
		ShippingAddress: addr,
		CreatedAt:       now,
		UpdatedAt:       now,
		OrderItems:      items,
	}, nil
}
