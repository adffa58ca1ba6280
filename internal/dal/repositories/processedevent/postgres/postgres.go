package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iprocessedeventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/processedevent"
)

// PostgresProcessedEventRepository is the consumer deduplication ledger.
type PostgresProcessedEventRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

var _ iprocessedeventrepo.IProcessedEventRepository = (*PostgresProcessedEventRepository)(nil)

func NewPostgresProcessedEventRepository(conn postgres.GenericConn) *PostgresProcessedEventRepository {
	return &PostgresProcessedEventRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Exists reports whether eventID has already been processed.
func (r *PostgresProcessedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	sql, args, err := r.sb.
		Select("1").
		Prefix("SELECT EXISTS (").
		From("processed_events").
		Where(sq.Eq{"event_id": eventID}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var exists bool
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}

	return exists, nil
}

// Insert records a processed event. A unique violation on the event id or on
// the broker position is reported as dalerr.ErrDuplicate.
func (r *PostgresProcessedEventRepository) Insert(ctx context.Context, e processedevent.ProcessedEvent) error {
	sql, args, err := r.sb.
		Insert("processed_events").
		Columns(
			"event_id",
			"event_type",
			"consumer_group",
			"broker_topic",
			"broker_partition",
			"broker_offset",
			"outcome",
			"processed_at",
		).
		Values(
			e.EventID,
			e.EventType,
			e.ConsumerGroup,
			e.Topic,
			e.Partition,
			e.Offset,
			string(e.Outcome),
			e.ProcessedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert processed event: %w", dalerr.Translate(err))
	}

	return nil
}

// DeleteProcessedBefore purges ledger rows older than cutoff.
func (r *PostgresProcessedEventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	sql, args, err := r.sb.
		Delete("processed_events").
		Where(sq.Lt{"processed_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return tag.RowsAffected(), nil
}
