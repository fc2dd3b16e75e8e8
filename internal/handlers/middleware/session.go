package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/handlers/reqctx"
)

const (
	SessionCookie = "sid"
	CartCookie    = "cart_id"

	sessionCookieMaxAge = 30 * 24 * time.Hour
	cartCookieMaxAge    = 365 * 24 * time.Hour
)

// SessionFunc returns the session for the id; the same id must give the same session
type SessionFunc func(sid string) reqctx.Session

// SessionMiddleware issues the session cookie on first contact and puts the session into context
func SessionMiddleware(sessions SessionFunc, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, ok := readID(r, SessionCookie)
			if !ok {
				sid = uuid.NewString()
				setCookie(w, SessionCookie, sid, sessionCookieMaxAge, secure)
			}

			ctx := reqctx.WithSession(r.Context(), sessions(sid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CartMiddleware issues long-lived cart id cookie on first contact
// The cart id is never tied to the session so the cart survives login and logout
func CartMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cartID, ok := readID(r, CartCookie)
			if !ok {
				cartID = uuid.NewString()
				setCookie(w, CartCookie, cartID, cartCookieMaxAge, secure)
			}

			ctx := reqctx.WithCartID(r.Context(), cartID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Ids are uuids; anything else is treated as missing
func readID(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func setCookie(w http.ResponseWriter, name string, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
