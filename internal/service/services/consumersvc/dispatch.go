package consumersvc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/processedevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/statemachine"
)

const (
	actorInventory = "inventory-service"
	actorPayment   = "payment-service"
)

// dispatch maps an event onto an order transition. Unknown event types and
// unknown payment statuses are ignored so that producers can evolve.
func (s *ConsumerService) dispatch(
	ctx context.Context,
	work iuow.UnitOfWork,
	env event.Envelope,
) (processedevent.Outcome, error) {
	meta := ordersvc.TransitionMeta{
		CorrelationID: env.Metadata.CorrelationID,
		CausationID:   env.Metadata.EventID,
	}

	switch env.Metadata.EventType {
	case event.InventoryReserved:
		var p event.InventoryReservedPayload
		if err := decode(env, &p, &p.OrderID); err != nil {
			return "", err
		}
		meta.Actor = actorInventory

		return s.apply(ctx, work, p.OrderID, statemachine.ActionConfirm, meta)

	case event.InventoryReservationFailed:
		var p event.InventoryReservationFailedPayload
		if err := decode(env, &p, &p.OrderID); err != nil {
			return "", err
		}
		meta.Actor = actorInventory
		meta.Reason = orDefault(p.Reason, "inventory reservation failed")
		meta.TolerateTerminal = true

		return s.apply(ctx, work, p.OrderID, statemachine.ActionCancel, meta)

	case event.PaymentCaptured:
		var p event.PaymentPayload
		if err := decode(env, &p, &p.OrderID); err != nil {
			return "", err
		}
		meta.Actor = actorPayment

		switch {
		case p.Succeeded():
			return s.apply(ctx, work, p.OrderID, statemachine.ActionPay, meta)
		case p.Failed():
			meta.Reason = orDefault(p.FailureReason, "payment failed")
			meta.TolerateTerminal = true

			return s.apply(ctx, work, p.OrderID, statemachine.ActionFailPayment, meta)
		default:
			slog.Warn("Ignoring payment with unknown status",
				"event_id", env.Metadata.EventID,
				"order_id", p.OrderID,
				"status", p.Status)

			return processedevent.OutcomeIgnored, nil
		}

	case event.PaymentFailed:
		var p event.PaymentPayload
		if err := decode(env, &p, &p.OrderID); err != nil {
			return "", err
		}
		meta.Actor = actorPayment
		meta.Reason = orDefault(p.FailureReason, "payment failed")
		meta.TolerateTerminal = true

		return s.apply(ctx, work, p.OrderID, statemachine.ActionFailPayment, meta)

	default:
		slog.Warn("Ignoring unhandled event type",
			"event_id", env.Metadata.EventID,
			"event_type", env.Metadata.EventType.String())

		return processedevent.OutcomeIgnored, nil
	}
}

func (s *ConsumerService) apply(
	ctx context.Context,
	work iuow.UnitOfWork,
	orderID string,
	action statemachine.Action,
	meta ordersvc.TransitionMeta,
) (processedevent.Outcome, error) {
	_, applied, err := s.orders.ApplyTransition(ctx, work, orderID, action, meta)
	if err != nil {
		return "", err
	}
	if !applied {
		return processedevent.OutcomeIgnored, nil
	}

	return processedevent.OutcomeApplied, nil
}

// decode unmarshals the payload and requires a well-formed order id. Malformed
// payloads are permanent failures.
func decode(env event.Envelope, dst any, orderID *string) error {
	if err := env.DecodePayload(dst); err != nil {
		return errs.Validation("malformed %s payload: %v", env.Metadata.EventType, err)
	}
	if *orderID == "" {
		return errs.Validation("%s payload has no orderId", env.Metadata.EventType)
	}
	if _, err := uuid.Parse(*orderID); err != nil {
		return errs.Validation("%s payload has malformed orderId %q", env.Metadata.EventType, *orderID)
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
