package postgresrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/dalerr"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/currency"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
)

const table = "orders"

var columns = []string{
	"id::text",
	"customer_id",
	"total_amount::text",
	"currency",
	"status",
	"idempotency_key",
	"shipping_line1",
	"shipping_line2",
	"shipping_city",
	"shipping_state",
	"shipping_postal_code",
	"shipping_country",
	"cancelled_at",
	"cancellation_reason",
	"refund_required",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model.
type OrderDal struct {
	Id                 string
	CustomerId         string
	TotalAmount        string
	Currency           string
	Status             string
	IdempotencyKey     string
	ShippingLine1      string
	ShippingLine2      string
	ShippingCity       string
	ShippingState      string
	ShippingPostalCode string
	ShippingCountry    string
	CancelledAt        pgtype.Timestamptz
	CancellationReason string
	RefundRequired     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (d *OrderDal) scanTargets() []any {
	return []any{
		&d.Id,
		&d.CustomerId,
		&d.TotalAmount,
		&d.Currency,
		&d.Status,
		&d.IdempotencyKey,
		&d.ShippingLine1,
		&d.ShippingLine2,
		&d.ShippingCity,
		&d.ShippingState,
		&d.ShippingPostalCode,
		&d.ShippingCountry,
		&d.CancelledAt,
		&d.CancellationReason,
		&d.RefundRequired,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
}

// ToModel converts OrderDal to service layer Order model.
func (d *OrderDal) ToModel() (order.Order, error) {
	cur, err := currency.ParseCurrency(d.Currency)
	if err != nil {
		return order.Order{}, err
	}
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to parse total amount %q: %w", d.TotalAmount, err)
	}

	o := order.Order{
		ID:             d.Id,
		CustomerID:     d.CustomerId,
		TotalAmount:    total,
		Currency:       cur,
		Status:         order.Status(d.Status),
		IdempotencyKey: d.IdempotencyKey,
		ShippingAddress: order.Address{
			Line1:      d.ShippingLine1,
			Line2:      d.ShippingLine2,
			City:       d.ShippingCity,
			State:      d.ShippingState,
			PostalCode: d.ShippingPostalCode,
			Country:    d.ShippingCountry,
		},
		CancellationReason: d.CancellationReason,
		RefundRequired:     d.RefundRequired,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if d.CancelledAt.Valid {
		at := d.CancelledAt.Time
		o.CancelledAt = &at
	}

	return o, nil
}

// PostgresOrderRepository represents a Postgres order repository.
type PostgresOrderRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

var _ iorderrepo.IOrderRepository = (*PostgresOrderRepository)(nil)

// NewPostgresOrderRepository creates a new Postgres order repository.
func NewPostgresOrderRepository(conn postgres.GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert inserts an order without its items and returns the stored row.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	var cancelledAt pgtype.Timestamptz
	if o.CancelledAt != nil {
		cancelledAt = pgtype.Timestamptz{Time: *o.CancelledAt, Valid: true}
	}

	sql, args, err := r.sb.
		Insert(table).
		Columns(
			"id",
			"customer_id",
			"total_amount",
			"currency",
			"status",
			"idempotency_key",
			"shipping_line1",
			"shipping_line2",
			"shipping_city",
			"shipping_state",
			"shipping_postal_code",
			"shipping_country",
			"cancelled_at",
			"cancellation_reason",
			"refund_required",
			"created_at",
			"updated_at",
		).
		Values(
			o.ID,
			o.CustomerID,
			o.TotalAmount.String(),
			o.Currency.String(),
			o.Status.String(),
			o.IdempotencyKey,
			o.ShippingAddress.Line1,
			o.ShippingAddress.Line2,
			o.ShippingAddress.City,
			o.ShippingAddress.State,
			o.ShippingAddress.PostalCode,
			o.ShippingAddress.Country,
			cancelledAt,
			o.CancellationReason,
			o.RefundRequired,
			o.CreatedAt,
			o.UpdatedAt,
		).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(dal.scanTargets()...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", dalerr.Translate(err))
	}

	return dal.ToModel()
}

// GetByID returns the order with the given id.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (order.Order, error) {
	return r.getOne(ctx, r.sb.Select(columns...).From(table).Where(sq.Eq{"id": id}))
}

// GetByIDForUpdate returns the order with the given id and locks its row.
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id string) (order.Order, error) {
	return r.getOne(ctx, r.sb.Select(columns...).From(table).Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// GetByIdempotencyKey returns the order created with the given key.
func (r *PostgresOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (order.Order, error) {
	return r.getOne(ctx, r.sb.Select(columns...).From(table).Where(sq.Eq{"idempotency_key": key}))
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, query sq.SelectBuilder) (order.Order, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(dal.scanTargets()...); err != nil {
		return order.Order{}, dalerr.Translate(err)
	}

	return dal.ToModel()
}

// UpdateStatus rewrites the transition columns of one order.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, upd iorderrepo.StatusUpdate) error {
	query := r.sb.
		Update(table).
		Set("status", upd.Status.String()).
		Set("refund_required", upd.RefundRequired).
		Set("updated_at", upd.UpdatedAt).
		Where(sq.Eq{"id": id})

	if upd.CancelledAt != nil {
		query = query.
			Set("cancelled_at", *upd.CancelledAt).
			Set("cancellation_reason", upd.CancellationReason)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.ErrNotFound
	}

	return nil
}

// Query retrieves orders based on filter criteria, newest first.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	if filter == nil {
		filter = &order.QueryOrdersModel{}
	}

	query := applyFilter(r.sb.Select(columns...).From(table), filter).
		OrderBy("created_at DESC", "id")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	result := []order.Order{}
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, model)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// Count returns the number of orders matching filter, ignoring pagination.
func (r *PostgresOrderRepository) Count(ctx context.Context, filter *order.QueryOrdersModel) (int, error) {
	sql, args, err := applyFilter(r.sb.Select("count(*)").From(table), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}

	return total, nil
}

func applyFilter(query sq.SelectBuilder, filter *order.QueryOrdersModel) sq.SelectBuilder {
	if filter == nil {
		return query
	}

	if filter.CustomerID != "" {
		query = query.Where(sq.Eq{"customer_id": filter.CustomerID})
	}

	if filter.Status != "" {
		query = query.Where(sq.Eq{"status": filter.Status.String()})
	}

	return query
}

func joinColumns() string {
	return strings.Join(columns, ", ")
}
