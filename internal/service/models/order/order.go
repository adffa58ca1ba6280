package order

import (
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/currency"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderitem"
	"github.com/shopspring/decimal"
)

// AggregateType is the aggregate name used in outbox rows and event payloads.
const AggregateType = "order"

// Order represents an order in the system.
type Order struct {
	ID                 string                `json:"id"`
	CustomerID         string                `json:"customerId"`
	TotalAmount        decimal.Decimal       `json:"totalAmount"`
	Currency           currency.Currency     `json:"currency"`
	Status             Status                `json:"status"`
	IdempotencyKey     string                `json:"idempotencyKey"`
	ShippingAddress    Address               `json:"shippingAddress"`
	CancelledAt        *time.Time            `json:"cancelledAt,omitempty"`
	CancellationReason string                `json:"cancellationReason,omitempty"`
	RefundRequired     bool                  `json:"refundRequired"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	OrderItems         []orderitem.OrderItem `json:"orderItems"`
}

// Address is the shipping address captured at creation.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CalculateTotal sums quantity × unit price over items using exact decimal arithmetic.
func CalculateTotal(items []orderitem.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}

	return total
}
