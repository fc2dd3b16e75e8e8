package commerce

import (
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/storefront/internal/models"
)

type CartItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

type AddCartItemRequest struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Product struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	StockQuantity    int             `json:"stock_quantity"`
	IsAvailable      bool            `json:"is_available"`
	RequiresShipping bool            `json:"requires_shipping"`
	FreeShipping     bool            `json:"free_shipping"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
}

// Variant overrides price, stock and availability of its product
type Variant struct {
	ID            int64            `json:"id"`
	ProductID     int64            `json:"product_id"`
	Size          string           `json:"size,omitempty"`
	Color         string           `json:"color,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	IsAvailable   bool             `json:"is_available"`
}

type CreateOrderRequest struct {
	CartID          string                 `json:"cart_id"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	ShippingMethod  string                 `json:"shipping_method"`
}

type Order struct {
	Number        string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

type PaymentLink struct {
	Link  string `json:"link"`
	TxRef string `json:"tx_ref"`
}

type VerifyPaymentRequest struct {
	Status        string `json:"status"`
	TxRef         string `json:"tx_ref"`
	TransactionID string `json:"transaction_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
