package ioutboxrepo

import (
	"context"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

// IOutboxRepository defines the interface for outbox operations.
type IOutboxRepository interface {
	// Insert stages an entry. It must run inside the transaction of the state
	// change it announces.
	Insert(ctx context.Context, e outbox.Entry) error

	// ClaimUnpublished locks up to limit unpublished entries, oldest first,
	// skipping rows already locked by another publisher.
	ClaimUnpublished(ctx context.Context, limit int) ([]outbox.Entry, error)

	// MarkPublished flips the given entries to published.
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error

	// DeletePublishedBefore purges published entries older than cutoff.
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
