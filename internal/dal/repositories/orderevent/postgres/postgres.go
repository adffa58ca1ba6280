package postgresrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iordereventrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
)

// PostgresOrderEventRepository stores the order audit log.
type PostgresOrderEventRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

var _ iordereventrepo.IOrderEventRepository = (*PostgresOrderEventRepository)(nil)

func NewPostgresOrderEventRepository(conn postgres.GenericConn) *PostgresOrderEventRepository {
	return &PostgresOrderEventRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert appends one audit record.
func (r *PostgresOrderEventRepository) Insert(ctx context.Context, e orderevent.OrderEvent) error {
	sql, args, err := r.sb.
		Insert("order_events").
		Columns("order_id", "event_type", "payload", "created_at").
		Values(e.OrderID, e.EventType, []byte(e.Payload), e.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}

	return nil
}

// ListByOrderID returns the audit log of one order in insertion order.
func (r *PostgresOrderEventRepository) ListByOrderID(ctx context.Context, orderID string) ([]orderevent.OrderEvent, error) {
	sql, args, err := r.sb.
		Select("id", "order_id::text", "event_type", "payload", "created_at").
		From("order_events").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer rows.Close()

	result := []orderevent.OrderEvent{}
	for rows.Next() {
		var (
			e       orderevent.OrderEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		e.Payload = payload
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
