package orderitem

import (
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/currency"
	"github.com/shopspring/decimal"
)

// OrderItem represents an item within an order.
// Items are written once together with their order and never updated.
type OrderItem struct {
	ID          int64             `json:"id"`
	OrderID     string            `json:"orderId"`
	ProductID   string            `json:"productId"`
	ProductName string            `json:"productName"`
	SellerID    string            `json:"sellerId"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unitPrice"`
	Currency    currency.Currency `json:"currency"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Subtotal returns quantity × unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// QueryOrderItemsModel represents filter parameters for querying order items.
type QueryOrderItemsModel struct {
	OrderIDs []string `json:"orderIds,omitempty"`
}
