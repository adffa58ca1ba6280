package order

// Status is the lifecycle status of an order.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusFulfilled      Status = "FULFILLED"
	StatusCancelled      Status = "CANCELLED"
	// StatusCompleted is reserved; no transition produces it yet.
	StatusCompleted Status = "COMPLETED"
)

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaymentPending, StatusPaid,
		StatusPaymentFailed, StatusFulfilled, StatusCancelled, StatusCompleted:
		return true
	}

	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaymentFailed, StatusFulfilled, StatusCancelled, StatusCompleted:
		return true
	}

	return false
}
