package orderevent

import (
	"encoding/json"
	"time"
)

// OrderEvent is an append-only audit record of one order transition.
type OrderEvent struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"orderId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}
