package reqctx

import (
	"context"

	"github.com/nkiryanov/storefront/internal/models"
)

// Session of the browser the request came from
type Session interface {
	ID() string
	EnsureValid(ctx context.Context) (models.Credentials, error)
	Establish(ctx context.Context, creds models.Credentials) (models.Identity, error)
	Revoke(ctx context.Context) error
	Identity() models.Identity
	Profile(ctx context.Context) (models.Profile, error)
	RefreshProfile(ctx context.Context) (models.Profile, error)
}

type ctxKey string

const (
	sessionKey ctxKey = "session"
	cartKey    ctxKey = "cart_id"
)

// Create a new context with the session
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// Extract the session from the context
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

func WithCartID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cartKey, id)
}

func CartID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cartKey).(string)
	return id, ok && id != ""
}
