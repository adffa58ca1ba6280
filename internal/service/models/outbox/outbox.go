package outbox

import (
	"time"
)

// Entry is an integration event staged for publication. It is written in the
// same transaction as the state change it announces.
type Entry struct {
	ID            int64
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Published     bool
	PublishedAt   *time.Time
	CreatedAt     time.Time
}
