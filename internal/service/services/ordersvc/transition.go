package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/statemachine"
)

// TransitionMeta carries the context of one transition request.
type TransitionMeta struct {
	Reason        string
	Actor         string
	CorrelationID string
	// CausationID is the id of the event that triggered the transition.
	CausationID string
	// TolerateTerminal turns compensating actions on an already compensated
	// order into no-op successes.
	TolerateTerminal bool
}

// Confirm moves a PENDING order to PAYMENT_PENDING.
func (s *OrderService) Confirm(ctx context.Context, id string, meta TransitionMeta) (order.Order, error) {
	return s.transition(ctx, id, statemachine.ActionConfirm, meta)
}

// Pay moves a PAYMENT_PENDING order to PAID.
func (s *OrderService) Pay(ctx context.Context, id string, meta TransitionMeta) (order.Order, error) {
	return s.transition(ctx, id, statemachine.ActionPay, meta)
}

// MarkPaymentFailed moves a PAYMENT_PENDING order to PAYMENT_FAILED and emits
// order.cancelled. It is always tolerant of already compensated orders.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, id string, meta TransitionMeta) (order.Order, error) {
	meta.TolerateTerminal = true

	return s.transition(ctx, id, statemachine.ActionFailPayment, meta)
}

// Fulfill moves a PAID order to FULFILLED.
func (s *OrderService) Fulfill(ctx context.Context, id string, meta TransitionMeta) (order.Order, error) {
	return s.transition(ctx, id, statemachine.ActionFulfill, meta)
}

// Cancel cancels an order that has not reached a terminal status. Both a
// reason and an actor are required.
func (s *OrderService) Cancel(ctx context.Context, id string, meta TransitionMeta) (order.Order, error) {
	if strings.TrimSpace(meta.Reason) == "" {
		return order.Order{}, errs.Validation("cancellation reason is required")
	}
	if strings.TrimSpace(meta.Actor) == "" {
		return order.Order{}, errs.Validation("cancellation actor is required")
	}

	return s.transition(ctx, id, statemachine.ActionCancel, meta)
}

func (s *OrderService) transition(
	ctx context.Context,
	id string,
	action statemachine.Action,
	meta TransitionMeta,
) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.Transition")
	defer span.End()

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, err
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	o, _, err := s.ApplyTransition(ctx, work, id, action, meta)
	if err != nil {
		return order.Order{}, err
	}

	if err := work.Commit(ctx); err != nil {
		return order.Order{}, err
	}

	return o, nil
}

// ApplyTransition applies action to the order inside work's open transaction.
// The order row is locked first, so concurrent transitions on one order are
// serialized. applied is false when a tolerated compensation was a no-op.
func (s *OrderService) ApplyTransition(
	ctx context.Context,
	work iuow.UnitOfWork,
	id string,
	action statemachine.Action,
	meta TransitionMeta,
) (o order.Order, applied bool, err error) {
	o, err = work.OrderRepository().GetByIDForUpdate(ctx, id)
	if errors.Is(err, dalerr.ErrNotFound) {
		return order.Order{}, false, errs.OrderNotFound(id)
	}
	if err != nil {
		return order.Order{}, false, fmt.Errorf("failed to load order: %w", err)
	}

	if meta.TolerateTerminal && statemachine.IsCompensated(o.Status, action) {
		slog.Info("Order already compensated, skipping",
			"order_id", id,
			"status", o.Status.String(),
			"action", action.String())

		return o, false, nil
	}

	tr, err := statemachine.Next(o.Status, action)
	if err != nil {
		return order.Order{}, false, err
	}

	now := s.now()
	upd := iorderrepo.StatusUpdate{
		Status:         tr.To,
		RefundRequired: o.RefundRequired || tr.RefundRequired,
		UpdatedAt:      now,
	}
	if action == statemachine.ActionCancel || action == statemachine.ActionFailPayment {
		upd.CancelledAt = &now
		upd.CancellationReason = meta.Reason
	}

	if err := work.OrderRepository().UpdateStatus(ctx, id, upd); err != nil {
		return order.Order{}, false, fmt.Errorf("failed to update order status: %w", err)
	}

	o.Status = upd.Status
	o.RefundRequired = upd.RefundRequired
	o.UpdatedAt = now
	if upd.CancelledAt != nil {
		o.CancelledAt = upd.CancelledAt
		o.CancellationReason = upd.CancellationReason
	}

	if err := s.attachItems(ctx, work, []*order.Order{&o}); err != nil {
		return order.Order{}, false, err
	}

	if err := s.record(ctx, work, emission{
		audit:         tr.AuditEvent,
		outbox:        tr.OutboxEvent,
		payload:       toPayload(o, tr.From, meta.Reason, meta.Actor, now),
		correlationID: meta.CorrelationID,
		causationID:   meta.CausationID,
	}); err != nil {
		return order.Order{}, false, err
	}

	slog.Info("Order transitioned",
		"order_id", id,
		"action", action.String(),
		"from", tr.From.String(),
		"to", tr.To.String())

	return o, true, nil
}
