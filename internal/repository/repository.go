package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/models"
)

type Storage interface {
	Order() OrderRepo
	Payment() PaymentRepo

	// Run fn in transaction; commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type ListOrdersOpts struct {
	// Filter by statuses, all statuses if empty
	Statuses []models.OrderStatus

	// Filter by owner, all owners if empty
	OwnerID string

	// Max orders to return, unlimited if zero
	Limit int
}

type OrderRepo interface {
	// Create order with its lines
	// If order with the number exists must return apperrors.ErrOrderAlreadyExists
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// Get order by number, lines included
	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, number string, opts ...GetOrderOption) (models.Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID, opts ...GetOrderOption) (models.Order, error)

	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)

	// Set statuses if the current order status is one of 'from'
	// If status does not match must return apperrors.ErrOrderTransition with the order as it is
	UpdateStatus(ctx context.Context, id uuid.UUID, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentStatus) (models.Order, error)
}

type PaymentRepo interface {
	// Save payment attempt; saving the same tx_ref twice is not an error
	SaveAttempt(ctx context.Context, attempt models.PaymentAttempt) error

	// Find payment attempt by gateway transaction reference
	// If not found must return apperrors.ErrOrderNotFound
	GetAttempt(ctx context.Context, txRef string) (models.PaymentAttempt, error)

	// Record callback as applied
	// Return false if callback for (order, transaction id) already recorded
	RecordCallback(ctx context.Context, cb models.PaymentCallback) (recorded bool, err error)

	// Return callback if it was recorded before
	GetCallback(ctx context.Context, orderID uuid.UUID, transactionID string) (models.PaymentCallback, bool, error)
}

type getOrderOptions struct {
	ForUpdate bool
}

type GetOrderOption func(*getOrderOptions)

// Lock selected order row until transaction ends
func ForUpdate() GetOrderOption {
	return func(o *getOrderOptions) {
		o.ForUpdate = true
	}
}

func ApplyGetOrderOptions(opts ...GetOrderOption) (forUpdate bool) {
	var o getOrderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.ForUpdate
}
