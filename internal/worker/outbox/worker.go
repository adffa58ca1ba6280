package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ibroker"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

const batchTimeout = time.Minute

// Worker publishes committed outbox entries to the broker.
type Worker struct {
	newUOW       iuow.Factory
	publisher    ibroker.Publisher
	pollInterval time.Duration
	batchSize    int
	stuckAfter   time.Duration
	now          func() time.Time
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

// option is a function that configures the Worker.
type option func(*Worker)

// WithPollInterval overrides outbox.poll_interval.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPollInterval(d time.Duration) option {
	return func(w *Worker) {
		w.pollInterval = d
	}
}

// WithBatchSize overrides outbox.batch_size.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBatchSize(n int) option {
	return func(w *Worker) {
		w.batchSize = n
	}
}

// WithStuckAfter overrides outbox.stuck_after.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStuckAfter(d time.Duration) option {
	return func(w *Worker) {
		w.stuckAfter = d
	}
}

// WithClock replaces the time source.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(w *Worker) {
		w.now = now
	}
}

// NewWorker creates a new outbox worker.
func NewWorker(newUOW iuow.Factory, publisher ibroker.Publisher, opts ...option) *Worker {
	pollInterval := viper.GetDuration("outbox.poll_interval")
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	batchSize := viper.GetInt("outbox.batch_size")
	if batchSize <= 0 {
		batchSize = 100
	}

	stuckAfter := viper.GetDuration("outbox.stuck_after")
	if stuckAfter <= 0 {
		stuckAfter = time.Minute
	}

	w := &Worker{
		newUOW:       newUOW,
		publisher:    publisher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		stuckAfter:   stuckAfter,
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start begins publishing entries from the outbox. It returns when ctx is
// done or Stop is called, after the batch in progress has finished.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchTimeout)
			if _, err := w.RunOnce(bctx); err != nil {
				slog.Error("Outbox batch failed", "error", err)
			}
			cancel()
		}
	}
}

// Stop stops the worker and waits for Start to return.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// Result summarizes one publisher run.
type Result struct {
	Claimed   int
	Published int
	Failed    int
	// Deferred counts entries held back because an earlier entry of the same
	// aggregate failed in this batch.
	Deferred int
}

// RunOnce claims one batch, publishes it and marks the successes published,
// all in one transaction. A failed entry stays unpublished for the next run
// without aborting the rest of the batch, and later entries of its aggregate
// wait with it so per-aggregate order holds.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "OutboxWorker.RunOnce")
	defer span.End()

	var res Result

	work := w.newUOW()
	if err := work.Begin(ctx); err != nil {
		return res, err
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	entries, err := work.OutboxRepository().ClaimUnpublished(ctx, w.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to claim outbox entries: %w", err)
	}
	res.Claimed = len(entries)
	if len(entries) == 0 {
		return res, nil
	}

	w.warnStuck(entries)

	published := make([]int64, 0, len(entries))
	blocked := make(map[string]bool)
	for _, e := range entries {
		if blocked[e.AggregateID] {
			res.Deferred++

			continue
		}
		if err := w.publisher.Publish(ctx, toMessage(e)); err != nil {
			blocked[e.AggregateID] = true
			res.Failed++
			slog.Warn("Failed to publish outbox entry, will retry",
				"outbox_id", e.ID,
				"event_id", e.EventID,
				"event_type", e.EventType,
				"error", err,
			)

			continue
		}
		published = append(published, e.ID)
	}

	if err := work.OutboxRepository().MarkPublished(ctx, published, w.now()); err != nil {
		return res, fmt.Errorf("failed to mark outbox entries published: %w", err)
	}

	if err := work.Commit(ctx); err != nil {
		return res, err
	}
	res.Published = len(published)

	span.SetAttributes(
		attribute.Int("outbox.claimed", res.Claimed),
		attribute.Int("outbox.published", res.Published),
		attribute.Int("outbox.failed", res.Failed),
		attribute.Int("outbox.deferred", res.Deferred),
	)
	slog.Info("Outbox batch published",
		"published", res.Published,
		"failed", res.Failed,
		"deferred", res.Deferred,
	)

	return res, nil
}

func (w *Worker) warnStuck(entries []outbox.Entry) {
	threshold := w.now().Add(-w.stuckAfter)

	var (
		stuck  int
		oldest time.Time
	)
	for _, e := range entries {
		if e.CreatedAt.Before(threshold) {
			stuck++
			if oldest.IsZero() || e.CreatedAt.Before(oldest) {
				oldest = e.CreatedAt
			}
		}
	}

	if stuck > 0 {
		slog.Warn("Outbox entries are stuck",
			"count", stuck,
			"oldest_created_at", oldest,
			"stuck_after", w.stuckAfter,
		)
	}
}

// toMessage keys the message by aggregate id so that all events of one order
// land on the same partition.
func toMessage(e outbox.Entry) ibroker.Message {
	headers := map[string]string{
		event.HeaderEventID:   e.EventID,
		event.HeaderEventType: e.EventType,
	}
	if env, err := event.Decode(e.Payload); err == nil {
		headers = env.Headers()
	}

	return ibroker.Message{
		Topic:   e.Topic,
		Key:     e.AggregateID,
		Value:   e.Payload,
		Headers: headers,
	}
}
