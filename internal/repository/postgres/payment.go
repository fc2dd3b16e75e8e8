package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

type PaymentRepo struct {
	DB DBTX
}

const saveAttempt = `-- name: SaveAttempt
INSERT INTO payment_attempts (tx_ref, order_id, link, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tx_ref) DO NOTHING
`

func (r *PaymentRepo) SaveAttempt(ctx context.Context, a models.PaymentAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.DB.Exec(ctx, saveAttempt, a.TxRef, a.OrderID, a.Link, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getAttempt = `-- name: GetAttempt
SELECT tx_ref, order_id, link, created_at
FROM payment_attempts
WHERE tx_ref = $1
`

func (r *PaymentRepo) GetAttempt(ctx context.Context, txRef string) (models.PaymentAttempt, error) {
	rows, _ := r.DB.Query(ctx, getAttempt, txRef)
	a, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.PaymentAttempt, error) {
		var a models.PaymentAttempt
		err := row.Scan(&a.TxRef, &a.OrderID, &a.Link, &a.CreatedAt)
		return a, err
	})

	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, pgx.ErrNoRows):
		return a, apperrors.ErrOrderNotFound
	default:
		return a, fmt.Errorf("db error: %w", err)
	}
}

const recordCallback = `-- name: RecordCallback
INSERT INTO payment_callbacks (order_id, transaction_id, tx_ref, status, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, transaction_id) DO NOTHING
`

func (r *PaymentRepo) RecordCallback(ctx context.Context, cb models.PaymentCallback) (bool, error) {
	if cb.ReceivedAt.IsZero() {
		cb.ReceivedAt = time.Now().UTC()
	}

	tag, err := r.DB.Exec(ctx, recordCallback, cb.OrderID, cb.TransactionID, cb.TxRef, cb.Status, cb.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const getCallback = `-- name: GetCallback
SELECT order_id, transaction_id, tx_ref, status, received_at
FROM payment_callbacks
WHERE order_id = $1 AND transaction_id = $2
`

func (r *PaymentRepo) GetCallback(ctx context.Context, orderID uuid.UUID, transactionID string) (models.PaymentCallback, bool, error) {
	rows, _ := r.DB.Query(ctx, getCallback, orderID, transactionID)
	cb, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.PaymentCallback, error) {
		var cb models.PaymentCallback
		err := row.Scan(&cb.OrderID, &cb.TransactionID, &cb.TxRef, &cb.Status, &cb.ReceivedAt)
		return cb, err
	})

	switch {
	case err == nil:
		return cb, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return cb, false, nil
	default:
		return cb, false, fmt.Errorf("db error: %w", err)
	}
}
