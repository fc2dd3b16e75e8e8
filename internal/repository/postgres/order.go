package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, number, owner_id, status, payment_status, shipping_address, shipping_method,
	subtotal, shipping, tax, grand_total, created_at, modified_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns

const createOrderLine = `-- name: CreateOrderLine
INSERT INTO order_lines (order_id, position, product_id, variant_id, name, unit_price, quantity, shipping_fee)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Create order and its lines in one transaction (savepoint if DB is a transaction already)
func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	now := time.Now().UTC()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.ModifiedAt = o.CreatedAt

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return o, fmt.Errorf("db tx error: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, _ := tx.Query(ctx, createOrder,
		o.ID, o.Number, o.OwnerID, string(o.Status), string(o.PaymentStatus), o.ShippingAddress, o.ShippingMethod,
		o.Subtotal, o.Shipping, o.Tax, o.GrandTotal, o.CreatedAt, o.ModifiedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToOrder)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return o, apperrors.ErrOrderAlreadyExists
		}
		return o, fmt.Errorf("db error: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(createOrderLine, created.ID, i, l.ProductID, l.VariantID, l.Name, l.UnitPrice, l.Quantity, l.ShippingFee)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return o, fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return o, fmt.Errorf("db error: %w", err)
	}

	created.Lines = o.Lines
	return created, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, number string, opts ...repository.GetOrderOption) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	return r.getOrder(ctx, query, number, opts...)
}

func (r *OrderRepo) GetOrderByID(ctx context.Context, id uuid.UUID, opts ...repository.GetOrderOption) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOrder(ctx, query, id, opts...)
}

func (r *OrderRepo) getOrder(ctx context.Context, query string, arg any, opts ...repository.GetOrderOption) (models.Order, error) {
	if repository.ApplyGetOrderOptions(opts...) {
		query += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, query, arg)
	o, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return o, apperrors.ErrOrderNotFound
	default:
		return o, fmt.Errorf("db error: %w", err)
	}

	o.Lines, err = r.listLines(ctx, o.ID)
	return o, err
}

const listOrderLines = `-- name: ListOrderLines
SELECT product_id, variant_id, name, unit_price, quantity, shipping_fee
FROM order_lines
WHERE order_id = $1
ORDER BY position
`

func (r *OrderRepo) listLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	rows, _ := r.DB.Query(ctx, listOrderLines, orderID)
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderLine, error) {
		var l models.OrderLine
		err := row.Scan(&l.ProductID, &l.VariantID, &l.Name, &l.UnitPrice, &l.Quantity, &l.ShippingFee)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return lines, nil
}

const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + `
FROM orders
WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
  AND ($2 = '' OR owner_id = $2)
ORDER BY created_at DESC
LIMIT NULLIF($3, 0)
`

// List orders without lines
func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	rows, _ := r.DB.Query(ctx, listOrders, statusStrings(opts.Statuses), opts.OwnerID, opts.Limit)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return orders, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus
UPDATE orders
SET status = $3, payment_status = $4, modified_at = $5
WHERE id = $1 AND status = ANY($2)
RETURNING ` + orderColumns

func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentStatus) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, updateOrderStatus, id, statusStrings(from), string(to), string(payment), time.Now().UTC())
	o, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		// Either order not exists or status changed by someone else
		current, getErr := r.GetOrderByID(ctx, id)
		if getErr != nil {
			return current, getErr
		}
		return current, &apperrors.OrderTransitionError{Number: current.Number, Status: string(current.Status), Op: "move to " + string(to)}
	default:
		return o, fmt.Errorf("db error: %w", err)
	}

	o.Lines, err = r.listLines(ctx, o.ID)
	return o, err
}

func statusStrings(statuses []models.OrderStatus) []string {
	s := make([]string, 0, len(statuses))
	for _, st := range statuses {
		s = append(s, string(st))
	}
	return s
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	var status, payment string
	err := row.Scan(
		&o.ID, &o.Number, &o.OwnerID, &status, &payment, &o.ShippingAddress, &o.ShippingMethod,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.GrandTotal, &o.CreatedAt, &o.ModifiedAt,
	)
	o.Status = models.OrderStatus(status)
	o.PaymentStatus = models.PaymentStatus(payment)
	return o, err
}
