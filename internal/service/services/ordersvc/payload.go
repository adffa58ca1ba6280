package ordersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

func toPayload(o order.Order, prev order.Status, reason, actor string, at time.Time) event.OrderPayload {
	items := make([]event.OrderItemPayload, 0, len(o.OrderItems))
	for _, it := range o.OrderItems {
		items = append(items, event.OrderItemPayload{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SellerID:    it.SellerID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Currency:    it.Currency.String(),
		})
	}

	return event.OrderPayload{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Status:         o.Status.String(),
		PreviousStatus: prev.String(),
		Items:          items,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency.String(),
		ShippingAddress: event.AddressPayload{
			Line1:      o.ShippingAddress.Line1,
			Line2:      o.ShippingAddress.Line2,
			City:       o.ShippingAddress.City,
			State:      o.ShippingAddress.State,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		RefundRequired: o.RefundRequired,
		Reason:         reason,
		Actor:          actor,
		OccurredAt:     at,
	}
}

// emission is the audit record and optional integration event of one change.
type emission struct {
	audit         event.Type
	outbox        event.Type
	payload       event.OrderPayload
	correlationID string
	causationID   string
}

// record appends the audit row and, when requested, stages the envelope in
// the outbox. It must run inside work's transaction.
func (s *OrderService) record(ctx context.Context, work iuow.UnitOfWork, e emission) error {
	at := e.payload.OccurredAt

	snapshot, err := json.Marshal(e.payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	if err := work.OrderEventRepository().Insert(ctx, orderevent.OrderEvent{
		OrderID:   e.payload.OrderID,
		EventType: e.audit.String(),
		Payload:   snapshot,
		CreatedAt: at,
	}); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	if e.outbox == "" {
		return nil
	}

	env, err := event.New(e.outbox, e.payload, s.source, e.correlationID, e.causationID, at)
	if err != nil {
		return err
	}
	raw, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := work.OutboxRepository().Insert(ctx, outbox.Entry{
		EventID:       env.Metadata.EventID,
		EventType:     e.outbox.String(),
		AggregateType: order.AggregateType,
		AggregateID:   e.payload.OrderID,
		Topic:         s.topic,
		Payload:       raw,
		CreatedAt:     at,
	}); err != nil {
		return fmt.Errorf("failed to stage outbox entry: %w", err)
	}

	return nil
}
