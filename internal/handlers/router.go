package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nkiryanov/storefront/internal/handlers/middleware"
	"github.com/nkiryanov/storefront/internal/handlers/reqctx"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/service/cart"
	"github.com/nkiryanov/storefront/internal/service/commerce"
	"github.com/nkiryanov/storefront/internal/service/order"
)

type Config struct {
	Sessions middleware.SessionFunc
	Auth     AuthClient

	// Services talk to the commerce API on behalf of the session, so they are built per request
	Carts  CartFactory
	Orders OrderFactory

	RequireEmailVerification bool
	SecureCookies            bool
}

func NewRouter(cfg Config, l logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		middleware.LoggerMiddleware(l),
		chimw.Recoverer,
		middleware.SessionMiddleware(cfg.Sessions, cfg.SecureCookies),
		middleware.CartMiddleware(cfg.SecureCookies),
	)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(cfg.Auth, l))
			r.Post("/login", handleLogin(cfg.Auth, l))
			r.Post("/logout", handleLogout(l))
			r.Get("/me", handleMe())
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handleGetCart(cfg.Carts, l))
			r.Post("/items", handleAddCartItem(cfg.Carts, l))
			r.Patch("/items/{itemID}", handleUpdateCartItem(cfg.Carts, l))
			r.Delete("/items/{itemID}", handleRemoveCartItem(cfg.Carts, l))
		})

		r.Post("/checkout", handleCheckout(cfg.Carts, cfg.Orders, cfg.RequireEmailVerification, l))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/orders/{number}", handleGetOrder(cfg.Orders, l))
			r.Post("/orders/{number}/pay", handlePayOrder(cfg.Orders, l))
			r.Post("/orders/{number}/cancel", handleCancelOrder(cfg.Orders, l))
		})
	})

	r.Get("/payment/callback", handlePaymentCallback(cfg.Orders, l))

	return r
}

type (
	CartFactory  func(s reqctx.Session) CartService
	OrderFactory func(s reqctx.Session) OrderService
)

type AuthClient interface {
	Login(ctx context.Context, r commerce.LoginRequest) (models.Credentials, error)
	Register(ctx context.Context, r commerce.RegisterRequest) (models.Credentials, error)
}

type CartService interface {
	Load(ctx context.Context, cartID string) (models.PricedCart, error)
	AddItem(ctx context.Context, cartID string, r cart.AddItemRequest) (models.PricedCart, error)
	UpdateQuantity(ctx context.Context, cartID string, itemID int64, quantity int) (models.PricedCart, error)
	RemoveItem(ctx context.Context, cartID string, itemID int64) (models.PricedCart, error)
}

type OrderService interface {
	Create(ctx context.Context, r order.CreateRequest) (models.Order, error)
	Get(ctx context.Context, ownerID string, number string) (models.Order, error)
	InitiatePayment(ctx context.Context, ownerID string, number string) (order.PaymentRedirect, error)
	Cancel(ctx context.Context, ownerID string, number string) (models.Order, error)
	HandleGatewayCallback(ctx context.Context, cb order.Callback) (models.Order, error)
}

// Sessions and cart id are always in context behind the router middlewares
func fromContext(r *http.Request) (reqctx.Session, string) {
	s, _ := reqctx.SessionFrom(r.Context())
	cartID, _ := reqctx.CartID(r.Context())
	return s, cartID
}
