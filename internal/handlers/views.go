package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/storefront/internal/models"
)

// Money goes out as string with two decimals
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type cartLineView struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	VariantID     *int64 `json:"variant_id,omitempty"`
	Name          string `json:"name"`
	Size          string `json:"size,omitempty"`
	Color         string `json:"color,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	LineTotal     string `json:"line_total"`
	StockQuantity int    `json:"stock_quantity"`
	IsAvailable   bool   `json:"is_available"`
	Purchasable   bool   `json:"purchasable"`
}

type cartView struct {
	CartID          string         `json:"cart_id"`
	Lines           []cartLineView `json:"lines"`
	BlockingItemIDs []int64        `json:"blocking_item_ids"`
	Subtotal        string         `json:"subtotal"`
	Shipping        string         `json:"shipping"`
	Tax             string         `json:"tax"`
	GrandTotal      string         `json:"grand_total"`
	AllItemsInStock bool           `json:"all_items_in_stock"`
}

func newCartView(cartID string, pc models.PricedCart) cartView {
	v := cartView{
		CartID:          cartID,
		Lines:           make([]cartLineView, 0, len(pc.Lines)),
		BlockingItemIDs: pc.BlockingItemIDs,
		Subtotal:        money(pc.Subtotal),
		Shipping:        money(pc.Shipping),
		Tax:             money(pc.Tax),
		GrandTotal:      money(pc.GrandTotal),
		AllItemsInStock: pc.AllItemsInStock,
	}
	if v.BlockingItemIDs == nil {
		v.BlockingItemIDs = []int64{}
	}

	for _, l := range pc.Lines {
		v.Lines = append(v.Lines, cartLineView{
			ID:            l.ItemID,
			ProductID:     l.ProductID,
			VariantID:     l.VariantID,
			Name:          l.Name,
			Size:          l.Size,
			Color:         l.Color,
			Quantity:      l.Quantity,
			UnitPrice:     money(l.UnitPrice),
			LineTotal:     money(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))),
			StockQuantity: l.StockQuantity,
			IsAvailable:   l.IsAvailable,
			Purchasable:   l.Purchasable(),
		})
	}
	return v
}

type orderLineView struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderView struct {
	Number          string                 `json:"number"`
	Status          models.OrderStatus     `json:"status"`
	PaymentStatus   models.PaymentStatus   `json:"payment_status"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	ShippingMethod  string                 `json:"shipping_method"`
	Lines           []orderLineView        `json:"lines"`
	Subtotal        string                 `json:"subtotal"`
	Shipping        string                 `json:"shipping"`
	Tax             string                 `json:"tax"`
	GrandTotal      string                 `json:"grand_total"`
	CanPay          bool                   `json:"can_pay"`
	CanCancel       bool                   `json:"can_cancel"`
	CreatedAt       time.Time              `json:"created_at"`
}

func newOrderView(o models.Order) orderView {
	v := orderView{
		Number:          o.Number,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		ShippingAddress: o.ShippingAddress,
		ShippingMethod:  o.ShippingMethod,
		Lines:           make([]orderLineView, 0, len(o.Lines)),
		Subtotal:        money(o.Subtotal),
		Shipping:        money(o.Shipping),
		Tax:             money(o.Tax),
		GrandTotal:      money(o.GrandTotal),
		CanPay:          o.Status.IsPayable() && o.PaymentStatus != models.PaymentStatusCompleted,
		CanCancel:       o.Status.IsCancellable(),
		CreatedAt:       o.CreatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, orderLineView{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
		})
	}
	return v
}

type identityView struct {
	Authenticated bool            `json:"authenticated"`
	Username      string          `json:"username,omitempty"`
	Profile       *models.Profile `json:"profile,omitempty"`
}

func newIdentityView(id models.Identity) identityView {
	return identityView{
		Authenticated: id.Authenticated,
		Username:      id.Username,
		Profile:       id.Profile,
	}
}
