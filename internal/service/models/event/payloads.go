package event

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderItemPayload is one line item inside order events.
type OrderItemPayload struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	SellerID    string          `json:"sellerId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Currency    string          `json:"currency"`
}

// AddressPayload is the shipping address inside order events.
type AddressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderPayload is carried by every order.* event, both on the broker and in
// the audit log.
type OrderPayload struct {
	OrderID         string             `json:"orderId"`
	CustomerID      string             `json:"customerId"`
	Status          string             `json:"status"`
	PreviousStatus  string             `json:"previousStatus,omitempty"`
	Items           []OrderItemPayload `json:"items"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	Currency        string             `json:"currency"`
	ShippingAddress AddressPayload     `json:"shippingAddress"`
	RefundRequired  bool               `json:"refundRequired,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	Actor           string             `json:"actor,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

// InventoryReservedPayload is emitted by the inventory service on success.
type InventoryReservedPayload struct {
	OrderID       string `json:"orderId"`
	ReservationID string `json:"reservationId,omitempty"`
}

// InventoryReservationFailedPayload is emitted by the inventory service on failure.
type InventoryReservationFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// Payment statuses carried by payment.captured.
const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCaptured  = "CAPTURED"
	PaymentStatusFailed    = "FAILED"
)

// PaymentPayload is emitted by the payment service.
type PaymentPayload struct {
	OrderID       string          `json:"orderId"`
	PaymentID     string          `json:"paymentId,omitempty"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// Succeeded reports whether the payment was captured.
func (p PaymentPayload) Succeeded() bool {
	switch strings.ToUpper(p.Status) {
	case PaymentStatusCompleted, PaymentStatusCaptured:
		return true
	}

	return false
}

// Failed reports whether the payment failed.
func (p PaymentPayload) Failed() bool {
	return strings.EqualFold(p.Status, PaymentStatusFailed)
}
