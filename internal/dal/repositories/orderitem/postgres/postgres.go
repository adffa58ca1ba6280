package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/interfaces/iorderitemrepo"
	"github.com/IsVohi/OrderFlow-sub000/internal/dal/postgres"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/currency"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderitem"
)

// OrderItemDal represents order item data access layer model.
type OrderItemDal struct {
	Id          int64
	OrderId     string
	ProductId   string
	ProductName string
	SellerId    string
	Quantity    int
	UnitPrice   string
	Currency    string
	CreatedAt   time.Time
}

func (d *OrderItemDal) scanTargets() []any {
	return []any{
		&d.Id,
		&d.OrderId,
		&d.ProductId,
		&d.ProductName,
		&d.SellerId,
		&d.Quantity,
		&d.UnitPrice,
		&d.Currency,
		&d.CreatedAt,
	}
}

// ToModel converts OrderItemDal to service layer OrderItem model.
func (d *OrderItemDal) ToModel() (orderitem.OrderItem, error) {
	cur, err := currency.ParseCurrency(d.Currency)
	if err != nil {
		return orderitem.OrderItem{}, err
	}
	price, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return orderitem.OrderItem{}, fmt.Errorf("failed to parse unit price %q: %w", d.UnitPrice, err)
	}

	return orderitem.OrderItem{
		ID:          d.Id,
		OrderID:     d.OrderId,
		ProductID:   d.ProductId,
		ProductName: d.ProductName,
		SellerID:    d.SellerId,
		Quantity:    d.Quantity,
		UnitPrice:   price,
		Currency:    cur,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// PostgresOrderItemRepository represents a Postgres order item repository.
type PostgresOrderItemRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

var _ iorderitemrepo.IOrderItemRepository = (*PostgresOrderItemRepository)(nil)

// NewPostgresOrderItemRepository creates a new Postgres order item repository.
func NewPostgresOrderItemRepository(conn postgres.GenericConn) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// BulkInsert inserts multiple order items and returns the inserted order items with IDs.
// Columns travel as parallel text arrays and are cast server-side.
func (r *PostgresOrderItemRepository) BulkInsert(
	ctx context.Context,
	orderItems []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	if len(orderItems) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	sql := `
		INSERT INTO order_items (order_id, product_id, product_name, seller_id, quantity, unit_price, currency, created_at)
		SELECT order_id::uuid, product_id, product_name, seller_id, quantity, unit_price::numeric, currency, created_at
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::int[], $6::text[], $7::text[], $8::timestamptz[])
		AS t(order_id, product_id, product_name, seller_id, quantity, unit_price, currency, created_at)
		RETURNING id, order_id::text, product_id, product_name, seller_id, quantity, unit_price::text, currency, created_at
	`

	orderIds := make([]string, len(orderItems))
	productIds := make([]string, len(orderItems))
	productNames := make([]string, len(orderItems))
	sellerIds := make([]string, len(orderItems))
	quantities := make([]int32, len(orderItems))
	unitPrices := make([]string, len(orderItems))
	currencies := make([]string, len(orderItems))
	createdAts := make([]time.Time, len(orderItems))

	for i, oi := range orderItems {
		orderIds[i] = oi.OrderID
		productIds[i] = oi.ProductID
		productNames[i] = oi.ProductName
		sellerIds[i] = oi.SellerID
		quantities[i] = int32(oi.Quantity)
		unitPrices[i] = oi.UnitPrice.String()
		currencies[i] = oi.Currency.String()
		createdAts[i] = oi.CreatedAt
	}

	rows, err := r.conn.Query(ctx, sql,
		orderIds,
		productIds,
		productNames,
		sellerIds,
		quantities,
		unitPrices,
		currencies,
		createdAts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// Query retrieves order items based on filter criteria.
func (r *PostgresOrderItemRepository) Query(
	ctx context.Context,
	filter *orderitem.QueryOrderItemsModel,
) ([]orderitem.OrderItem, error) {
	query := r.sb.
		Select(
			"id",
			"order_id::text",
			"product_id",
			"product_name",
			"seller_id",
			"quantity",
			"unit_price::text",
			"currency",
			"created_at",
		).
		From("order_items").
		OrderBy("id")

	if filter != nil && len(filter.OrderIDs) > 0 {
		query = query.Where(sq.Eq{"order_id": filter.OrderIDs})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collect(rows rowScanner) ([]orderitem.OrderItem, error) {
	result := []orderitem.OrderItem{}
	for rows.Next() {
		var dal OrderItemDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order item dal to model: %w", err)
		}
		result = append(result, model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
