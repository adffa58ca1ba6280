package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/ioutboxrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/outbox"
)

// OutboxRepository implements the outbox repository for PostgreSQL.
type OutboxRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

var _ ioutboxrepo.IOutboxRepository = (*OutboxRepository)(nil)

// NewOutboxRepository creates a new outbox repository.
func NewOutboxRepository(conn postgres.GenericConn) *OutboxRepository {
	return &OutboxRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert adds a new entry to the outbox.
func (r *OutboxRepository) Insert(ctx context.Context, e outbox.Entry) error {
	query, args, err := r.sb.Insert("outbox").
		Columns(
			"event_id",
			"event_type",
			"aggregate_type",
			"aggregate_id",
			"topic",
			"payload",
			"created_at",
		).
		Values(
			e.EventID,
			e.EventType,
			e.AggregateType,
			e.AggregateID,
			e.Topic,
			e.Payload,
			e.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err = r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", dalerr.Translate(err))
	}

	return nil
}

// ClaimUnpublished locks up to limit unpublished entries ordered by creation
// time. Must be called inside a transaction; rows locked by a concurrent
// publisher are skipped.
func (r *OutboxRepository) ClaimUnpublished(ctx context.Context, limit int) ([]outbox.Entry, error) {
	query, args, err := r.sb.Select(
		"id",
		"event_id::text",
		"event_type",
		"aggregate_type",
		"aggregate_id",
		"topic",
		"payload",
		"published",
		"published_at",
		"created_at",
	).
		From("outbox").
		Where(sq.Eq{"published": false}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var (
			e           outbox.Entry
			publishedAt pgtype.Timestamptz
		)
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.EventType,
			&e.AggregateType,
			&e.AggregateID,
			&e.Topic,
			&e.Payload,
			&e.Published,
			&publishedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		if publishedAt.Valid {
			at := publishedAt.Time
			e.PublishedAt = &at
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox entries: %w", err)
	}

	return entries, nil
}

// MarkPublished flips the given entries to published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := r.sb.Update("outbox").
		Set("published", true).
		Set("published_at", at).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err = r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark outbox entries published: %w", err)
	}

	return nil
}

// DeletePublishedBefore removes published entries older than cutoff.
func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := r.sb.Delete("outbox").
		Where(sq.Eq{"published": true}).
		Where(sq.Lt{"published_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outbox entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
