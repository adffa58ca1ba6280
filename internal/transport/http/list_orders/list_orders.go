package listorders

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

var validate = validator.New()

type service interface {
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, int, error)
}

type queryOrdersRequest struct {
	CustomerID string `schema:"customerId"`
	Status     string `schema:"status"`
	Page       int    `schema:"page"     validate:"gte=0"`
	PageSize   int    `schema:"pageSize" validate:"gte=0"`
}

// normalize fills defaults and caps the page size.
func (q *queryOrdersRequest) normalize() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = ordersvc.DefaultPageSize
	}
	if q.PageSize > ordersvc.MaxPageSize {
		q.PageSize = ordersvc.MaxPageSize
	}
}

func (q *queryOrdersRequest) ToModel() order.QueryOrdersModel {
	return order.QueryOrdersModel{
		CustomerID: q.CustomerID,
		Status:     order.Status(q.Status),
		Limit:      q.PageSize,
		Offset:     (q.Page - 1) * q.PageSize,
	}
}

type listOrdersResponse struct {
	Orders   []order.Order `json:"orders"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		respond.Error(w, r, errs.Validation("malformed query: %v", err))

		return
	}
	if err := validate.Struct(query); err != nil {
		respond.Error(w, r, errs.Validation("%v", err))

		return
	}
	query.normalize()

	orders, total, err := service.ListOrders(r.Context(), query.ToModel())
	if err != nil {
		respond.Error(w, r, err)

		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respond.JSON(w, r, http.StatusOK, listOrdersResponse{
		Orders:   orders,
		Page:     query.Page,
		PageSize: query.PageSize,
		Total:    total,
	})
}
