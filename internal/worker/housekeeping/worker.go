package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iuow"
)

// Worker prunes published outbox rows and old processed-event ledger rows.
type Worker struct {
	newUOW    iuow.Factory
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// option is a function that configures the Worker.
type option func(*Worker)

// WithInterval overrides housekeeping.interval.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInterval(d time.Duration) option {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithRetention overrides housekeeping.retention.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetention(d time.Duration) option {
	return func(w *Worker) {
		w.retention = d
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

// NewWorker creates a new housekeeping worker.
func NewWorker(newUOW iuow.Factory, opts ...option) *Worker {
	interval := viper.GetDuration("housekeeping.interval")
	if interval <= 0 {
		interval = time.Hour
	}

	retention := viper.GetDuration("housekeeping.retention")
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	w := &Worker{
		newUOW:    newUOW,
		interval:  interval,
		retention: retention,
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

// Start runs a cleanup pass on every tick until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Housekeeping worker started", "interval", w.interval, "retention", w.retention)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Housekeeping worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Housekeeping worker stopped")

			return
		case <-ticker.C:
			w.RunOnce(context.WithoutCancel(ctx))
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

// Result counts the rows removed by one pass.
type Result struct {
	OutboxDeleted    int64
	ProcessedDeleted int64
}

// RunOnce deletes rows older than the retention window. The two tables are
// pruned independently so that a failure on one does not block the other.
func (w *Worker) RunOnce(ctx context.Context) Result {
	ctx, span := otel.Tracer("worker").Start(ctx, "HousekeepingWorker.RunOnce")
	defer span.End()

	var res Result
	cutoff := w.now().Add(-w.retention)
	work := w.newUOW()

	n, err := work.OutboxRepository().DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune outbox", "error", err)
	}
	res.OutboxDeleted = n

	n, err = work.ProcessedEventRepository().DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune processed events", "error", err)
	}
	res.ProcessedDeleted = n

	slog.Info("Housekeeping pass finished",
		"cutoff", cutoff,
		"outbox_deleted", res.OutboxDeleted,
		"processed_deleted", res.ProcessedDeleted,
	)

	return res
}
