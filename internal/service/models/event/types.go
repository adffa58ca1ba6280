package event

// Type is the closed set of event types this service produces or understands.
// Anything else decodes as an unknown type and is handled by the consumer's
// forward-compatible fallback.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderConfirmed     Type = "order.confirmed"
	OrderPaid          Type = "order.paid"
	OrderPaymentFailed Type = "order.payment_failed"
	OrderCancelled     Type = "order.cancelled"
	OrderFulfilled     Type = "order.fulfilled"

	InventoryReserved          Type = "inventory.reserved"
	InventoryReservationFailed Type = "inventory.reservation_failed"

	PaymentCaptured Type = "payment.captured"
	PaymentFailed   Type = "payment.failed"
)

func (t Type) String() string {
	return string(t)
}

// IsKnown reports whether t belongs to the closed set above.
func (t Type) IsKnown() bool {
	switch t {
	case OrderCreated, OrderConfirmed, OrderPaid, OrderPaymentFailed, OrderCancelled, OrderFulfilled,
		InventoryReserved, InventoryReservationFailed,
		PaymentCaptured, PaymentFailed:
		return true
	}

	return false
}
