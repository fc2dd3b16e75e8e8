package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
	"github.com/nkiryanov/storefront/internal/service/commerce"
)

type API interface {
	CreateOrder(ctx context.Context, r commerce.CreateOrderRequest) (commerce.Order, error)
	GetOrder(ctx context.Context, number string) (commerce.Order, error)
	PayOrder(ctx context.Context, number string) (commerce.PaymentLink, error)
	VerifyPayment(ctx context.Context, number string, r commerce.VerifyPaymentRequest) (commerce.Order, error)
	CancelOrder(ctx context.Context, number string) (commerce.Order, error)
}

type CreateRequest struct {
	CartID          string
	OwnerID         string
	Cart            models.PricedCart
	ShippingAddress models.ShippingAddress
	ShippingMethod  string
}

type PaymentRedirect struct {
	Order models.Order
	Link  string
	TxRef string
}

// Lifecycle drives orders through their statuses
// The local ledger mirrors the commerce API and is the source for idempotency
type Lifecycle struct {
	api      API
	storage  repository.Storage
	notifier Notifier
	logger   logger.Logger
}

func NewLifecycle(api API, storage repository.Storage, notifier Notifier, l logger.Logger) *Lifecycle {
	return &Lifecycle{
		api:      api,
		storage:  storage,
		notifier: notifier,
		logger:   l,
	}
}

// Create places the order for a priced cart; the order starts pending
func (l *Lifecycle) Create(ctx context.Context, r CreateRequest) (models.Order, error) {
	if len(r.Cart.Lines) == 0 {
		return models.Order{}, apperrors.ErrCartEmpty
	}
	if !r.Cart.AllItemsInStock {
		return models.Order{}, apperrors.ErrCartNotPurchasable
	}

	remote, err := l.api.CreateOrder(ctx, commerce.CreateOrderRequest{
		CartID:          r.CartID,
		ShippingAddress: r.ShippingAddress,
		ShippingMethod:  r.ShippingMethod,
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInsufficientStock), commerce.IsKind(err, commerce.KindConflict):
		// Stock moved since the cart was priced; customer may adjust and retry
		return models.Order{}, fmt.Errorf("order rejected by server: %w", apperrors.ErrInsufficientStock)
	default:
		return models.Order{}, err
	}
	if remote.Number == "" {
		return models.Order{}, fmt.Errorf("%w: order created without number", apperrors.ErrGateway)
	}

	o := models.Order{
		Number:          remote.Number,
		OwnerID:         r.OwnerID,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		ShippingAddress: r.ShippingAddress,
		ShippingMethod:  r.ShippingMethod,
		Lines:           freeze(r.Cart.Lines),
		Subtotal:        r.Cart.Subtotal,
		Shipping:        r.Cart.Shipping,
		Tax:             r.Cart.Tax,
		GrandTotal:      r.Cart.GrandTotal,
	}

	o, err = l.storage.Order().CreateOrder(ctx, o)
	if err != nil {
		return o, fmt.Errorf("failed to save order %s: %w", remote.Number, err)
	}

	l.logger.Info("Order created", "order_number", o.Number, "owner_id", o.OwnerID, "grand_total", o.GrandTotal)
	return o, nil
}

// Get returns the order if it belongs to the owner
func (l *Lifecycle) Get(ctx context.Context, ownerID string, number string) (models.Order, error) {
	o, err := l.storage.Order().GetOrder(ctx, number)
	if err != nil {
		return o, err
	}
	if o.OwnerID != ownerID {
		return models.Order{}, apperrors.ErrOrderNotFound
	}
	return o, nil
}

// InitiatePayment asks for the hosted payment page; order status stays as is
func (l *Lifecycle) InitiatePayment(ctx context.Context, ownerID string, number string) (PaymentRedirect, error) {
	o, err := l.Get(ctx, ownerID, number)
	if err != nil {
		return PaymentRedirect{}, err
	}
	if !o.Status.IsPayable() || o.PaymentStatus == models.PaymentStatusCompleted {
		return PaymentRedirect{}, &apperrors.OrderTransitionError{Number: o.Number, Status: string(o.Status), Op: "pay"}
	}

	link, err := l.api.PayOrder(ctx, o.Number)
	switch {
	case err == nil:
	case commerce.IsKind(err, commerce.KindConflict), commerce.IsKind(err, commerce.KindValidation):
		return PaymentRedirect{}, fmt.Errorf("%w: %v", apperrors.ErrGateway, err)
	default:
		return PaymentRedirect{}, err
	}
	if link.Link == "" || link.TxRef == "" {
		return PaymentRedirect{}, fmt.Errorf("%w: payment link is incomplete", apperrors.ErrGateway)
	}

	err = l.storage.Payment().SaveAttempt(ctx, models.PaymentAttempt{TxRef: link.TxRef, OrderID: o.ID, Link: link.Link})
	if err != nil {
		return PaymentRedirect{}, fmt.Errorf("failed to save payment attempt: %w", err)
	}

	l.logger.Info("Payment initiated", "order_number", o.Number, "tx_ref", link.TxRef)
	return PaymentRedirect{Order: o, Link: link.Link, TxRef: link.TxRef}, nil
}

// HandleGatewayCallback applies the payment outcome once per (order, transaction id)
// Repeated callbacks return the order as it is without side effects
func (l *Lifecycle) HandleGatewayCallback(ctx context.Context, cb Callback) (models.Order, error) {
	if err := cb.validate(); err != nil {
		return models.Order{}, err
	}

	o, err := l.orderByTxRef(ctx, cb.TxRef)
	if err != nil {
		return o, err
	}

	_, seen, err := l.storage.Payment().GetCallback(ctx, o.ID, cb.TransactionID)
	if err != nil {
		return o, err
	}
	if seen {
		l.logger.Debug("Callback already applied", "order_number", o.Number, "transaction_id", cb.TransactionID)
		return o, nil
	}

	success, err := l.verify(ctx, o, cb)
	if err != nil {
		return o, err
	}

	var event Event
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		locked, err := s.Order().GetOrderByID(ctx, o.ID, repository.ForUpdate())
		if err != nil {
			return err
		}
		o = locked

		recorded, err := s.Payment().RecordCallback(ctx, models.PaymentCallback{
			OrderID:       o.ID,
			TransactionID: cb.TransactionID,
			TxRef:         cb.TxRef,
			Status:        cb.Status,
		})
		if err != nil || !recorded {
			return err
		}

		status, payment := applyPayment(o.Status, o.PaymentStatus, success)
		if status == o.Status && payment == o.PaymentStatus {
			return nil
		}

		updated, err := s.Order().UpdateStatus(ctx, o.ID, []models.OrderStatus{o.Status}, status, payment)
		if err != nil {
			return err
		}
		o = updated
		event = EventPaymentFailed
		if success {
			event = EventPaymentConfirmed
		}
		return nil
	})
	if err != nil {
		return o, fmt.Errorf("failed to apply payment callback: %w", err)
	}

	if event != "" {
		l.notifier.OrderChanged(ctx, event, o)
	}
	return o, nil
}

// Cancel is allowed only before the order is paid
func (l *Lifecycle) Cancel(ctx context.Context, ownerID string, number string) (models.Order, error) {
	o, err := l.Get(ctx, ownerID, number)
	if err != nil {
		return o, err
	}
	if !o.Status.IsCancellable() {
		return o, &apperrors.OrderTransitionError{Number: o.Number, Status: string(o.Status), Op: "cancel"}
	}

	_, err = l.api.CancelOrder(ctx, o.Number)
	switch {
	case err == nil:
	case commerce.IsKind(err, commerce.KindConflict), commerce.IsKind(err, commerce.KindValidation):
		l.logger.Info("Cancel rejected by server", "order_number", o.Number, "error", err)
		return o, &apperrors.OrderTransitionError{Number: o.Number, Status: string(o.Status), Op: "cancel"}
	default:
		return o, err
	}

	// Payment callback may have won the race meanwhile
	cancelled, err := l.storage.Order().UpdateStatus(ctx, o.ID,
		[]models.OrderStatus{models.OrderStatusPending, models.OrderStatusPaymentFailed},
		models.OrderStatusCancelled, o.PaymentStatus,
	)
	if err != nil {
		return cancelled, err
	}

	l.notifier.OrderChanged(ctx, EventCancelled, cancelled)
	return cancelled, nil
}

// Sync pulls status from the commerce API and merges it forward.
// Payment status is left alone: only the gateway callback sets it.
func (l *Lifecycle) Sync(ctx context.Context, number string) (models.Order, error) {
	remote, err := l.api.GetOrder(ctx, number)
	if err != nil {
		return models.Order{}, err
	}

	var changed bool
	var o models.Order
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		locked, err := s.Order().GetOrder(ctx, number, repository.ForUpdate())
		if err != nil {
			return err
		}
		o = locked

		status := MergeStatus(o.Status, models.OrderStatus(remote.Status))
		if status == o.Status {
			return nil
		}

		updated, err := s.Order().UpdateStatus(ctx, o.ID, []models.OrderStatus{o.Status}, status, o.PaymentStatus)
		if err != nil {
			return err
		}
		o, changed = updated, true
		return nil
	})
	if err != nil {
		return o, fmt.Errorf("failed to sync order %s: %w", number, err)
	}

	if changed {
		l.notifier.OrderChanged(ctx, EventStatusSynced, o)
	}
	return o, nil
}

func (l *Lifecycle) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	return l.storage.Order().ListOrders(ctx, opts)
}

// Payment attempt knows the order; some gateways echo the order number as tx_ref
func (l *Lifecycle) orderByTxRef(ctx context.Context, txRef string) (models.Order, error) {
	attempt, err := l.storage.Payment().GetAttempt(ctx, txRef)
	switch {
	case err == nil:
		return l.storage.Order().GetOrderByID(ctx, attempt.OrderID)
	case errors.Is(err, apperrors.ErrOrderNotFound):
	default:
		return models.Order{}, err
	}

	o, err := l.storage.Order().GetOrder(ctx, txRef)
	if errors.Is(err, apperrors.ErrOrderNotFound) {
		return o, fmt.Errorf("%w: unknown tx_ref %q", apperrors.ErrInvalidCallback, txRef)
	}
	return o, err
}

// Ask the commerce API what really happened; callback query is not trusted for success
func (l *Lifecycle) verify(ctx context.Context, o models.Order, cb Callback) (success bool, err error) {
	remote, err := l.api.VerifyPayment(ctx, o.Number, commerce.VerifyPaymentRequest{
		Status:        cb.Status,
		TxRef:         cb.TxRef,
		TransactionID: cb.TransactionID,
	})

	confirmed := err == nil && models.PaymentStatus(remote.PaymentStatus) == models.PaymentStatusCompleted

	switch {
	case confirmed:
		return true, nil
	case cb.Successful() && errors.Is(err, apperrors.ErrTransport):
		return false, err
	case cb.Successful():
		l.logger.Warn("Payment not verified", "order_number", o.Number, "tx_ref", cb.TxRef, "error", err)
		return false, fmt.Errorf("%w: %w", apperrors.ErrGateway, apperrors.ErrPaymentNotVerified)
	default:
		if err != nil {
			l.logger.Info("Verification of failed payment errored", "order_number", o.Number, "error", err)
		}
		return false, nil
	}
}

// Outcome of a payment for the order in its current state
func applyPayment(status models.OrderStatus, payment models.PaymentStatus, success bool) (models.OrderStatus, models.PaymentStatus) {
	if payment == models.PaymentStatusCompleted {
		return status, payment
	}

	if success {
		if status.IsPayable() {
			return models.OrderStatusProcessing, models.PaymentStatusCompleted
		}
		// Paid after cancel or after sync moved it forward: keep status, remember the money
		return status, models.PaymentStatusCompleted
	}

	if status.IsPayable() {
		return models.OrderStatusPaymentFailed, models.PaymentStatusFailed
	}
	return status, payment
}

func freeze(lines []models.CartLine) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, models.OrderLine{
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			Name:        l.Name,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			ShippingFee: l.ShippingFee,
		})
	}
	return out
}
