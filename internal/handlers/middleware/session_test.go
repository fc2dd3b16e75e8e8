package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/handlers/reqctx"
)

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware(t *testing.T) {
	var requested []string
	sessions := SessionFunc(func(sid string) reqctx.Session {
		requested = append(requested, sid)
		return &fakeSession{id: sid}
	})

	var gotID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := reqctx.SessionFrom(r.Context())
		require.True(t, ok, "session must be in context")
		gotID = s.ID()
	})
	mw := SessionMiddleware(sessions, true)(handler)

	t.Run("issued on first contact", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		c := cookieByName(rec.Result(), SessionCookie)
		require.NotNil(t, c, "session cookie must be set")
		require.True(t, c.HttpOnly)
		require.True(t, c.Secure)
		require.Equal(t, "/", c.Path)
		require.Equal(t, c.Value, gotID)
		_, err := uuid.Parse(c.Value)
		require.NoError(t, err)
	})

	t.Run("reused when present", func(t *testing.T) {
		sid := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
		rec := httptest.NewRecorder()

		mw.ServeHTTP(rec, req)

		require.Nil(t, cookieByName(rec.Result(), SessionCookie), "cookie must not be reissued")
		require.Equal(t, sid, gotID)
	})

	t.Run("garbage replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "../../etc"})
		rec := httptest.NewRecorder()

		mw.ServeHTTP(rec, req)

		c := cookieByName(rec.Result(), SessionCookie)
		require.NotNil(t, c)
		require.NotEqual(t, "../../etc", gotID)
		require.Equal(t, c.Value, gotID)
	})
}

func TestCartMiddleware(t *testing.T) {
	var gotID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := reqctx.CartID(r.Context())
		require.True(t, ok)
		gotID = id
	})
	mw := CartMiddleware(false)(handler)

	t.Run("issued on first contact", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		c := cookieByName(rec.Result(), CartCookie)
		require.NotNil(t, c)
		require.Equal(t, c.Value, gotID)
		require.Equal(t, int(cartCookieMaxAge.Seconds()), c.MaxAge)
	})

	t.Run("kept across requests", func(t *testing.T) {
		cartID := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CartCookie, Value: cartID})
		rec := httptest.NewRecorder()

		mw.ServeHTTP(rec, req)

		require.Nil(t, cookieByName(rec.Result(), CartCookie))
		require.Equal(t, cartID, gotID)
	})
}
