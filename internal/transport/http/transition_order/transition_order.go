package transitionorder

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/statemachine"
	getorder "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/get_order"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

var validate = validator.New()

type service interface {
	Confirm(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Pay(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Fulfill(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Cancel(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor"  validate:"required"`
}

// Transition applies action to the order named in the path. Only cancel
// reads a body.
func Transition(w http.ResponseWriter, r *http.Request, service service, action statemachine.Action) {
	id, err := getorder.OrderID(r)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	meta := ordersvc.TransitionMeta{CorrelationID: respond.CorrelationID(r)}

	var o order.Order
	switch action {
	case statemachine.ActionConfirm:
		o, err = service.Confirm(r.Context(), id, meta)
	case statemachine.ActionPay:
		o, err = service.Pay(r.Context(), id, meta)
	case statemachine.ActionFulfill:
		o, err = service.Fulfill(r.Context(), id, meta)
	case statemachine.ActionCancel:
		req := cancelOrderRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, errs.Validation("malformed request body: %v", err))

			return
		}
		if err := validate.Struct(&req); err != nil {
			respond.Error(w, r, errs.Validation("%v", err))

			return
		}
		meta.Reason = req.Reason
		meta.Actor = req.Actor
		o, err = service.Cancel(r.Context(), id, meta)
	default:
		err = errs.Validation("unsupported action %q", action)
	}
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, r, http.StatusOK, o)
}
