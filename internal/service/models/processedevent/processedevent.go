package processedevent

import "time"

// Outcome records what the consumer did with an event.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
)

// ProcessedEvent is one row of the consumer deduplication ledger. Its presence
// means the event's effect has already been applied.
type ProcessedEvent struct {
	EventID       string
	EventType     string
	ConsumerGroup string
	Topic         string
	Partition     *int32
	Offset        *int64
	Outcome       Outcome
	ProcessedAt   time.Time
}
