package orderevents

import (
	"context"
	"net/http"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
	getorder "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/get_order"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

type service interface {
	ListOrderEvents(ctx context.Context, id string) ([]orderevent.OrderEvent, error)
}

type orderEventsResponse struct {
	Events []orderevent.OrderEvent `json:"events"`
}

// ListOrderEvents returns the audit log of one order.
func ListOrderEvents(w http.ResponseWriter, r *http.Request, service service) {
	id, err := getorder.OrderID(r)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	events, err := service.ListOrderEvents(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)

		return
	}
	if events == nil {
		events = []orderevent.OrderEvent{}
	}

	respond.JSON(w, r, http.StatusOK, orderEventsResponse{Events: events})
}
