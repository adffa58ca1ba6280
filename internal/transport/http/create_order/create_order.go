package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

// HeaderIdempotencyKey names the header that makes creation retry safe.
const HeaderIdempotencyKey = "Idempotency-Key"

var validate = validator.New()

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, cmd order.CreateOrderCommand) (order.Order, bool, error)
}

// itemInCreateOrderRequest represents an item in a create order request.
type itemInCreateOrderRequest struct {
	ProductID   string          `json:"productId"   validate:"required"`
	ProductName string          `json:"productName" validate:"required"`
	SellerID    string          `json:"sellerId"`
	Quantity    int             `json:"quantity"    validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Currency    string          `json:"currency"`
}

type addressRequest struct {
	Line1      string `json:"line1"      validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city"       validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country"    validate:"required"`
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	CustomerID      string                     `json:"customerId"      validate:"required"`
	Currency        string                     `json:"currency"        validate:"required,len=3"`
	ShippingAddress addressRequest             `json:"shippingAddress" validate:"required"`
	Items           []itemInCreateOrderRequest `json:"items"           validate:"required,min=1,dive"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validate.Struct(r)
}

// toCommand converts the request into a service command.
func (r *createOrderRequest) toCommand(key, correlationID string) order.CreateOrderCommand {
	items := make([]order.CreateOrderItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = order.CreateOrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SellerID:    it.SellerID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.String(),
			Currency:    it.Currency,
		}
	}

	return order.CreateOrderCommand{
		IdempotencyKey: key,
		CustomerID:     r.CustomerID,
		Currency:       r.Currency,
		ShippingAddress: order.Address{
			Line1:      r.ShippingAddress.Line1,
			Line2:      r.ShippingAddress.Line2,
			City:       r.ShippingAddress.City,
			State:      r.ShippingAddress.State,
			PostalCode: r.ShippingAddress.PostalCode,
			Country:    r.ShippingAddress.Country,
		},
		Items:         items,
		CorrelationID: correlationID,
	}
}

// CreateOrder handles order creation. A missing Idempotency-Key is generated;
// the effective key is echoed back. Replays answer 200 with the original order.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.WarnContext(r.Context(), "Error decoding request body for create order", "error", err)
		respond.Error(w, r, errs.Validation("malformed request body: %v", err))

		return
	}

	if err := req.Validate(); err != nil {
		respond.Error(w, r, errs.Validation("%v", err))

		return
	}

	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	w.Header().Set(HeaderIdempotencyKey, key)

	o, created, err := service.CreateOrder(r.Context(), req.toCommand(key, respond.CorrelationID(r)))
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.JSON(w, r, status, o)
}
