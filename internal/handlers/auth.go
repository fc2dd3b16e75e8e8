package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/service/commerce"
)

func handleRegister(auth AuthClient, l logger.Logger) http.HandlerFunc {
	type request struct {
		Username string `json:"username" validate:"notblank,min=2,max=150"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		creds, err := auth.Register(r.Context(), commerce.RegisterRequest(data))
		if err != nil {
			writeError(w, l, err)
			return
		}

		s, _ := fromContext(r)
		identity, err := s.Establish(r.Context(), creds)
		if err != nil {
			writeError(w, l, err)
			return
		}

		render.JSONWithStatus(w, newIdentityView(identity), http.StatusCreated)
	}
}

func handleLogin(auth AuthClient, l logger.Logger) http.HandlerFunc {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		creds, err := auth.Login(r.Context(), commerce.LoginRequest(data))
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUnauthenticated):
			render.TypedError(w, render.UnauthenticatedErrorType, "Invalid username or password", http.StatusUnauthorized)
			return
		default:
			writeError(w, l, err)
			return
		}

		s, _ := fromContext(r)
		identity, err := s.Establish(r.Context(), creds)
		if err != nil {
			writeError(w, l, err)
			return
		}

		render.JSON(w, newIdentityView(identity))
	}
}

// Logout always succeeds from the customer's point of view
func handleLogout(l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := fromContext(r)
		if err := s.Revoke(r.Context()); err != nil {
			l.Error("Failed to revoke session", "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := fromContext(r)
		if _, err := s.EnsureValid(r.Context()); err != nil {
			render.JSON(w, identityView{Authenticated: false})
			return
		}
		render.JSON(w, newIdentityView(s.Identity()))
	}
}
