package models

import (
	"github.com/shopspring/decimal"
)

// CartLine is a cart item with pricing and stock fields snapshotted from the catalog.
// The snapshot is refreshed every time the cart is loaded.
type CartLine struct {
	ItemID    int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`

	UnitPrice        decimal.Decimal `json:"unit_price"`
	StockQuantity    int             `json:"stock_quantity"`
	IsAvailable      bool            `json:"is_available"`
	RequiresShipping bool            `json:"requires_shipping"`
	FreeShipping     bool            `json:"free_shipping"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
}

// Purchasable reports whether the line can be part of an order
func (l CartLine) Purchasable() bool {
	return l.IsAvailable && l.StockQuantity > 0 && l.Quantity >= 1 && l.Quantity <= l.StockQuantity
}

// PricedCart is derived from cart lines and never stored
type PricedCart struct {
	Lines           []CartLine
	BlockingItemIDs []int64

	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	Tax             decimal.Decimal
	GrandTotal      decimal.Decimal
	AllItemsInStock bool
}
