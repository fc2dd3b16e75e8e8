package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/service/checkout"
	"github.com/nkiryanov/storefront/internal/service/commerce"
)

// writeError maps typed errors to response status
// Unknown errors are logged and hidden behind 500
func writeError(w http.ResponseWriter, l logger.Logger, err error) {
	var (
		stockErr      *apperrors.StockError
		transitionErr *apperrors.OrderTransitionError
		apiErr        *commerce.APIError
	)

	switch {
	case errors.Is(err, apperrors.ErrUnauthenticated):
		render.TypedError(w, render.UnauthenticatedErrorType, "Not authenticated", http.StatusUnauthorized)

	case errors.Is(err, apperrors.ErrUnverified):
		render.TypedError(w, render.UnverifiedErrorType, checkout.UnverifiedNotice, http.StatusForbidden)

	case errors.As(err, &stockErr):
		render.StockError(w, stockErr.Error(), stockErr.Available)

	case errors.Is(err, apperrors.ErrInsufficientStock),
		errors.Is(err, apperrors.ErrCartEmpty),
		errors.Is(err, apperrors.ErrCartNotPurchasable):
		render.TypedError(w, render.StockErrorType, err.Error(), http.StatusUnprocessableEntity)

	case errors.As(err, &transitionErr):
		render.TypedError(w, render.TransitionErrorType, transitionErr.Error(), http.StatusConflict)

	case errors.Is(err, apperrors.ErrInvalidCallback):
		render.TypedError(w, render.CallbackErrorType, err.Error(), http.StatusBadRequest)

	case errors.Is(err, apperrors.ErrOrderNotFound):
		render.TypedError(w, render.NotFoundErrorType, "Order not found", http.StatusNotFound)

	case errors.Is(err, apperrors.ErrCartItemNotFound):
		render.TypedError(w, render.NotFoundErrorType, "Cart item not found", http.StatusNotFound)

	case errors.Is(err, apperrors.ErrProductNotFound):
		render.TypedError(w, render.NotFoundErrorType, "Product not found", http.StatusNotFound)

	case errors.Is(err, apperrors.ErrGateway):
		l.Warn("Payment gateway error", "error", err)
		render.TypedError(w, render.GatewayErrorType, "Payment could not be processed", http.StatusBadGateway)

	case errors.Is(err, apperrors.ErrTransport):
		l.Warn("Commerce API unavailable", "error", err)
		render.TypedError(w, render.TransportErrorType, "Service temporarily unavailable, please retry", http.StatusServiceUnavailable)

	// Commerce API validation messages are meant for the customer
	case errors.As(err, &apiErr) && apiErr.Kind == commerce.KindValidation:
		render.FieldErrors(w, apiErr.Message, joinFields(apiErr.Fields))

	case errors.As(err, &apiErr) && apiErr.Kind == commerce.KindNotFound:
		render.TypedError(w, render.NotFoundErrorType, "Not found", http.StatusNotFound)

	case errors.As(err, &apiErr) && apiErr.Kind == commerce.KindForbidden:
		render.ServiceError(w, "Forbidden", http.StatusForbidden)

	default:
		l.Error("Unhandled error", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func joinFields(fields map[string][]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for name, msgs := range fields {
		out[name] = strings.Join(msgs, " ")
	}
	return out
}
