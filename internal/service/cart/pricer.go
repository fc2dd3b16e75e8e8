package cart

import (
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

// VAT, 7.5%
var TaxRate = decimal.New(75, -3)

// ValidateQuantity checks requested quantity against the line snapshot
// Advisory only: the server has the final word on stock
func ValidateQuantity(line models.CartLine, quantity int) error {
	if quantity < 1 {
		return apperrors.InvalidQuantity(quantity)
	}
	if quantity > line.StockQuantity {
		return apperrors.InsufficientStock(quantity, max(line.StockQuantity, 0))
	}
	return nil
}

// Price derives totals from lines
// Lines that can't be bought contribute nothing and mark the cart as not purchasable
func Price(lines []models.CartLine) models.PricedCart {
	pc := models.PricedCart{
		Lines:           lines,
		Subtotal:        decimal.Zero,
		Shipping:        decimal.Zero,
		AllItemsInStock: true,
	}

	for _, l := range lines {
		if !l.Purchasable() {
			pc.AllItemsInStock = false
			pc.BlockingItemIDs = append(pc.BlockingItemIDs, l.ItemID)
			continue
		}

		pc.Subtotal = pc.Subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		if l.RequiresShipping && !l.FreeShipping {
			pc.Shipping = pc.Shipping.Add(l.ShippingFee)
		}
	}

	pc.Subtotal = pc.Subtotal.Round(2)
	pc.Shipping = pc.Shipping.Round(2)
	pc.Tax = pc.Subtotal.Mul(TaxRate).Round(2)
	pc.GrandTotal = pc.Subtotal.Add(pc.Shipping).Add(pc.Tax).Round(2)

	return pc
}
