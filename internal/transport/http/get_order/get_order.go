package getorder

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

type service interface {
	GetOrder(ctx context.Context, id string) (order.Order, error)
}

// OrderID reads the {id} path parameter. Anything that is not a UUID cannot
// name an order.
func OrderID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", errs.OrderNotFound(id)
	}

	return id, nil
}

func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := OrderID(r)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	o, err := service.GetOrder(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, r, http.StatusOK, o)
}
