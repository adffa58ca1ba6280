// Package statemachine is the pure transition table of the order lifecycle.
// It performs no I/O; ordersvc loads the order, asks for the next transition and
// persists the result.
package statemachine

import (
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
)

// Action is a command that moves an order between statuses.
type Action string

const (
	ActionConfirm     Action = "confirm"
	ActionPay         Action = "pay"
	ActionFailPayment Action = "fail_payment"
	ActionFulfill     Action = "fulfill"
	ActionCancel      Action = "cancel"
)

func (a Action) String() string {
	return string(a)
}

// Transition describes the effect of applying an action.
type Transition struct {
	From order.Status
	To   order.Status
	// AuditEvent is always appended to the order's audit log.
	AuditEvent event.Type
	// OutboxEvent is empty when other services need not be told.
	OutboxEvent    event.Type
	RefundRequired bool
}

// Notifies reports whether the transition enqueues an integration event.
func (t Transition) Notifies() bool {
	return t.OutboxEvent != ""
}

type rule struct {
	from   []order.Status
	to     order.Status
	audit  event.Type
	outbox event.Type
}

var rules = map[Action]rule{
	ActionConfirm: {
		from:  []order.Status{order.StatusPending},
		to:    order.StatusPaymentPending,
		audit: event.OrderConfirmed,
	},
	ActionPay: {
		from:  []order.Status{order.StatusPaymentPending},
		to:    order.StatusPaid,
		audit: event.OrderPaid,
	},
	ActionFailPayment: {
		from:   []order.Status{order.StatusPaymentPending},
		to:     order.StatusPaymentFailed,
		audit:  event.OrderPaymentFailed,
		outbox: event.OrderCancelled,
	},
	ActionFulfill: {
		from:   []order.Status{order.StatusPaid},
		to:     order.StatusFulfilled,
		audit:  event.OrderFulfilled,
		outbox: event.OrderFulfilled,
	},
	ActionCancel: {
		from: []order.Status{
			order.StatusPending,
			order.StatusConfirmed,
			order.StatusPaymentPending,
			order.StatusPaid,
		},
		to:     order.StatusCancelled,
		audit:  event.OrderCancelled,
		outbox: event.OrderCancelled,
	},
}

// Next returns the transition for applying a to an order in status current.
// It fails with errs.ErrInvalidOrderState when the pre-state is wrong.
func Next(current order.Status, a Action) (Transition, error) {
	r, ok := rules[a]
	if !ok {
		return Transition{}, errs.Validation("unknown action %q", a)
	}

	for _, from := range r.from {
		if from != current {
			continue
		}

		return Transition{
			From:           current,
			To:             r.to,
			AuditEvent:     r.audit,
			OutboxEvent:    r.outbox,
			RefundRequired: a == ActionCancel && current == order.StatusPaid,
		}, nil
	}

	return Transition{}, errs.InvalidOrderState(current.String(), a.String())
}

// IsCompensated reports whether an order in status current has already been
// compensated, so that a compensating action a can succeed as a no-op.
func IsCompensated(current order.Status, a Action) bool {
	if a != ActionCancel && a != ActionFailPayment {
		return false
	}

	return current == order.StatusCancelled || current == order.StatusPaymentFailed
}

// Actions lists every action in a stable order.
func Actions() []Action {
	return []Action{ActionConfirm, ActionPay, ActionFailPayment, ActionFulfill, ActionCancel}
}
