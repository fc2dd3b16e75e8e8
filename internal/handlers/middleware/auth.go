package middleware

import (
	"net/http"

	"github.com/nkiryanov/storefront/internal/handlers/reqctx"
	"github.com/nkiryanov/storefront/internal/handlers/render"
)

// RequireAuth lets the request through only if the session has usable credentials
// Expired access is refreshed on the way
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := reqctx.SessionFrom(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		if _, err := s.EnsureValid(r.Context()); err != nil {
			render.TypedError(w, render.UnauthenticatedErrorType, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
