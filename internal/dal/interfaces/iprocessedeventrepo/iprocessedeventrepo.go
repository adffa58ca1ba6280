package iprocessedeventrepo

import (
	"context"
	"time"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/processedevent"
)

// IProcessedEventRepository is an interface for the consumer deduplication ledger.
type IProcessedEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	// Insert returns dalerr.ErrDuplicate when another consumer recorded the
	// same event or broker position first.
	Insert(ctx context.Context, e processedevent.ProcessedEvent) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
