package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/service/order"
)

func handleGetOrder(orders OrderFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := fromContext(r)

		o, err := orders(s).Get(r.Context(), s.Identity().Subject, chi.URLParam(r, "number"))
		if err != nil {
			writeError(w, l, err)
			return
		}
		render.JSON(w, newOrderView(o))
	}
}

func handlePayOrder(orders OrderFactory, l logger.Logger) http.HandlerFunc {
	type response struct {
		Order orderView `json:"order"`
		Link  string    `json:"link"`
		TxRef string    `json:"tx_ref"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := fromContext(r)

		redirect, err := orders(s).InitiatePayment(r.Context(), s.Identity().Subject, chi.URLParam(r, "number"))
		if err != nil {
			writeError(w, l, err)
			return
		}
		render.JSON(w, response{Order: newOrderView(redirect.Order), Link: redirect.Link, TxRef: redirect.TxRef})
	}
}

func handleCancelOrder(orders OrderFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := fromContext(r)

		o, err := orders(s).Cancel(r.Context(), s.Identity().Subject, chi.URLParam(r, "number"))
		if err != nil {
			writeError(w, l, err)
			return
		}
		render.JSON(w, newOrderView(o))
	}
}

// Gateway redirects the customer here after the hosted payment page
func handlePaymentCallback(orders OrderFactory, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cb, err := order.ParseCallback(r.URL.Query())
		if err != nil {
			writeError(w, l, err)
			return
		}

		s, _ := fromContext(r)
		o, err := orders(s).HandleGatewayCallback(r.Context(), cb)
		if err != nil {
			writeError(w, l, err)
			return
		}
		render.JSON(w, newOrderView(o))
	}
}
