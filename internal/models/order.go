package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusShipped       OrderStatus = "shipped"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Payable and cancellable share the same set of statuses
func (s OrderStatus) IsPayable() bool {
	return s == OrderStatusPending || s == OrderStatusPaymentFailed
}

func (s OrderStatus) IsCancellable() bool {
	return s.IsPayable()
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

const GatewayStatusSuccessful = "successful"

type ShippingAddress struct {
	FullName   string `json:"full_name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country" validate:"required"`
}

// OrderLine is frozen at order creation time
type OrderLine struct {
	ProductID   int64           `json:"product_id"`
	VariantID   *int64          `json:"variant_id,omitempty"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
}

type Order struct {
	ID              uuid.UUID
	Number          string
	OwnerID         string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShippingAddress ShippingAddress
	ShippingMethod  string
	Lines           []OrderLine

	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// PaymentAttempt links a gateway transaction reference with the order it pays for
type PaymentAttempt struct {
	TxRef     string
	OrderID   uuid.UUID
	Link      string
	CreatedAt time.Time
}

// PaymentCallback is a gateway callback applied to an order.
// The pair (OrderID, TransactionID) is unique.
type PaymentCallback struct {
	OrderID       uuid.UUID
	TransactionID string
	TxRef         string
	Status        string
	ReceivedAt    time.Time
}
