package handlers

import (
	"net/http"

	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/service/checkout"
	"github.com/nkiryanov/storefront/internal/service/order"
)

func handleCheckout(carts CartFactory, orders OrderFactory, requireEmailVerification bool, l logger.Logger) http.HandlerFunc {
	type request struct {
		ShippingAddress models.ShippingAddress `json:"shipping_address"`
		ShippingMethod  string                 `json:"shipping_method" validate:"notblank"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		s, cartID := fromContext(r)

		decision, err := checkout.NewGuard(s).Authorize(r.Context(), requireEmailVerification)
		if err != nil {
			writeError(w, l, err)
			return
		}
		if !decision.Allowed {
			if decision.Reason == checkout.ReasonUnverified {
				render.TypedError(w, render.UnverifiedErrorType, decision.Notice, http.StatusForbidden)
				return
			}
			writeError(w, l, decision.Err())
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Priced again right before ordering: snapshot may be stale
		pc, err := carts(s).Load(r.Context(), cartID)
		if err != nil {
			writeError(w, l, err)
			return
		}

		o, err := orders(s).Create(r.Context(), order.CreateRequest{
			CartID:          cartID,
			OwnerID:         s.Identity().Subject,
			Cart:            pc,
			ShippingAddress: data.ShippingAddress,
			ShippingMethod:  data.ShippingMethod,
		})
		if err != nil {
			writeError(w, l, err)
			return
		}

		render.JSONWithStatus(w, newOrderView(o), http.StatusCreated)
	}
}
