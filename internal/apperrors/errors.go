package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrUnverified          = errors.New("email is not verified")
	ErrCredentialsNotFound = errors.New("credentials not found")

	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrCartNotPurchasable = errors.New("cart has items that are unavailable or out of stock")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrProductNotFound    = errors.New("product not found")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrOrderTransition    = errors.New("order status does not allow this operation")

	ErrGateway            = errors.New("payment gateway error")
	ErrInvalidCallback    = errors.New("invalid payment callback")
	ErrPaymentNotVerified = errors.New("payment is not verified")

	ErrTransport = errors.New("commerce api is unavailable")
)

// StockError is returned on local quantity validation.
// Err is either ErrInvalidQuantity or ErrInsufficientStock.
type StockError struct {
	Err       error
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%s: requested %d, available %d", e.Err, e.Requested, e.Available)
	}
	return fmt.Sprintf("%s: requested %d", e.Err, e.Requested)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

func InvalidQuantity(requested int) *StockError {
	return &StockError{Err: ErrInvalidQuantity, Requested: requested}
}

func InsufficientStock(requested int, available int) *StockError {
	return &StockError{Err: ErrInsufficientStock, Requested: requested, Available: available}
}

// OrderTransitionError reports an operation attempted against an order in a status that forbids it
type OrderTransitionError struct {
	Number string
	Status string
	Op     string
}

func (e *OrderTransitionError) Error() string {
	return fmt.Sprintf("can't %s order %s in status %q", e.Op, e.Number, e.Status)
}

func (e *OrderTransitionError) Unwrap() error {
	return ErrOrderTransition
}
