package commerce

import (
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/apperrors"
)

func TestDecodeAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     ErrorKind
		message  string
		code     string
		fields   map[string][]string
		sentinel error
	}{
		{
			name:     "detail",
			status:   http.StatusUnauthorized,
			body:     `{"detail":"Authentication credentials were not provided."}`,
			kind:     KindUnauthorized,
			message:  "Authentication credentials were not provided.",
			sentinel: apperrors.ErrUnauthenticated,
		},
		{
			name:    "error with code",
			status:  http.StatusConflict,
			body:    `{"error":"conflict","code":"order_exists"}`,
			kind:    KindConflict,
			message: "conflict",
			code:    "order_exists",
		},
		{
			name:    "field errors",
			status:  http.StatusBadRequest,
			body:    `{"email":["Enter a valid email address."],"username":["This field is required."]}`,
			kind:    KindValidation,
			message: "email: Enter a valid email address.; username: This field is required.",
			fields: map[string][]string{
				"email":    {"Enter a valid email address."},
				"username": {"This field is required."},
			},
		},
		{
			name:     "non field errors mention stock",
			status:   http.StatusBadRequest,
			body:     `{"non_field_errors":["Not enough stock for Mug"]}`,
			kind:     KindInsufficientStock,
			message:  "Not enough stock for Mug",
			sentinel: apperrors.ErrInsufficientStock,
		},
		{
			name:     "stock code",
			status:   http.StatusConflict,
			body:     `{"message":"cannot create order","code":"insufficient_stock"}`,
			kind:     KindInsufficientStock,
			message:  "cannot create order",
			code:     "insufficient_stock",
			sentinel: apperrors.ErrInsufficientStock,
		},
		{
			name:     "plain text",
			status:   http.StatusInternalServerError,
			body:     "Internal Server Error",
			kind:     KindServer,
			message:  "Internal Server Error",
			sentinel: apperrors.ErrTransport,
		},
		{
			name:   "empty body",
			status: http.StatusNotFound,
			kind:   KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decodeAPIError(tt.status, http.Header{}, []byte(tt.body))

			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.StatusCode)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.fields, e.Fields)
			if tt.sentinel != nil {
				assert.ErrorIs(t, e, tt.sentinel)
			}
		})
	}

	t.Run("rate limited", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "7")

		e := decodeAPIError(http.StatusTooManyRequests, h, nil)

		require.Equal(t, KindRateLimited, e.Kind)
		require.Equal(t, 7*time.Second, e.RetryAfter)
		require.ErrorIs(t, e, apperrors.ErrTransport)
	})

	t.Run("rate limited without header", func(t *testing.T) {
		e := decodeAPIError(http.StatusTooManyRequests, http.Header{}, nil)
		require.Equal(t, defaultRetryAfter, e.RetryAfter)
	})

	t.Run("long plain text truncated on rune boundary", func(t *testing.T) {
		// 2 byte runes: byte 200 falls in the middle of one when prefixed by a single byte
		body := "x" + strings.Repeat("é", 150)

		e := decodeAPIError(http.StatusBadGateway, http.Header{}, []byte(body))

		require.True(t, utf8.ValidString(e.Message), "message shown to customers must be valid utf-8")
		require.True(t, strings.HasSuffix(e.Message, "..."))
		require.Equal(t, "x"+strings.Repeat("é", 99)+"...", e.Message)
	})

	t.Run("long ascii text truncated", func(t *testing.T) {
		e := decodeAPIError(http.StatusBadGateway, http.Header{}, []byte(strings.Repeat("a", 300)))
		require.Equal(t, strings.Repeat("a", maxMessageLen)+"...", e.Message)
	})

	t.Run("not found has no sentinel", func(t *testing.T) {
		e := decodeAPIError(http.StatusNotFound, http.Header{}, nil)
		require.NotErrorIs(t, e, apperrors.ErrTransport)
		require.NotErrorIs(t, e, apperrors.ErrUnauthenticated)
	})
}
