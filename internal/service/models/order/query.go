package order

// QueryOrdersModel represents filter parameters for querying orders.
type QueryOrdersModel struct {
	CustomerID string `json:"customerId,omitempty"`
	Status     Status `json:"status,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// CreateOrderCommand carries everything needed to create an order.
type CreateOrderCommand struct {
	IdempotencyKey  string
	CustomerID      string
	Currency        string
	ShippingAddress Address
	Items           []CreateOrderItem
	CorrelationID   string
}

// CreateOrderItem is one requested line item.
type CreateOrderItem struct {
	ProductID   string
	ProductName string
	SellerID    string
	Quantity    int
	UnitPrice   string
	Currency    string
}
