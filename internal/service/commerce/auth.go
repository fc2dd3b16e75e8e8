package commerce

import (
	"context"
	"net/http"

	"github.com/nkiryanov/storefront/internal/models"
)

// AuthClient talks to token and profile endpoints with explicit tokens
// It must use a gateway without session: the session itself depends on it
type AuthClient struct {
	gw *Gateway
}

func NewAuthClient(gw *Gateway) *AuthClient {
	return &AuthClient{gw: gw}
}

func (c *AuthClient) Login(ctx context.Context, r LoginRequest) (models.Credentials, error) {
	var creds models.Credentials
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "auth/token", Body: r}, &creds)
	return creds, err
}

func (c *AuthClient) Register(ctx context.Context, r RegisterRequest) (models.Credentials, error) {
	var creds models.Credentials
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "auth/register", Body: r}, &creds)
	return creds, err
}

func (c *AuthClient) Refresh(ctx context.Context, refresh string) (models.Credentials, error) {
	var creds models.Credentials
	err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   "auth/token/refresh",
		Body:   map[string]string{"refresh": refresh},
	}, &creds)
	return creds, err
}

func (c *AuthClient) Profile(ctx context.Context, access string) (models.Profile, error) {
	var p models.Profile
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "account/profile", Token: access}, &p)
	return p, err
}

func (c *AuthClient) call(ctx context.Context, r Request, out any) error {
	resp, err := c.gw.Send(ctx, r)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}
