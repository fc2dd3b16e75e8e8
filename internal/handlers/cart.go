package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/service/cart"
)

func handleGetCart(carts CartFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, cartID := fromContext(r)

		pc, err := carts(s).Load(r.Context(), cartID)
		writeCart(w, l, cartID, pc, err)
	}
}

func handleAddCartItem(carts CartFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[cart.AddItemRequest](w, r)
		if err != nil {
			return
		}

		s, cartID := fromContext(r)
		pc, err := carts(s).AddItem(r.Context(), cartID, data)
		writeCart(w, l, cartID, pc, err)
	}
}

func handleUpdateCartItem(carts CartFactory, l logger.Logger) http.HandlerFunc {
	type request struct {
		Quantity *int `json:"quantity" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		s, cartID := fromContext(r)
		pc, err := carts(s).UpdateQuantity(r.Context(), cartID, itemID, *data.Quantity)
		writeCart(w, l, cartID, pc, err)
	}
}

func handleRemoveCartItem(carts CartFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}

		s, cartID := fromContext(r)
		pc, err := carts(s).RemoveItem(r.Context(), cartID, itemID)
		writeCart(w, l, cartID, pc, err)
	}
}

func itemIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		render.TypedError(w, render.NotFoundErrorType, "Cart item not found", http.StatusNotFound)
		return 0, false
	}
	return itemID, true
}

func writeCart(w http.ResponseWriter, l logger.Logger, cartID string, pc models.PricedCart, err error) {
	if err != nil {
		writeError(w, l, err)
		return
	}
	render.JSON(w, newCartView(cartID, pc))
}
