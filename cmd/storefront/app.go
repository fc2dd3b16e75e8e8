package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/storefront/internal/db"
	"github.com/nkiryanov/storefront/internal/handlers"
	"github.com/nkiryanov/storefront/internal/handlers/reqctx"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/repository/postgres"
	"github.com/nkiryanov/storefront/internal/repository/redisstore"
	"github.com/nkiryanov/storefront/internal/service/cart"
	"github.com/nkiryanov/storefront/internal/service/commerce"
	"github.com/nkiryanov/storefront/internal/service/order"
	"github.com/nkiryanov/storefront/internal/service/orderprocessor"
	"github.com/nkiryanov/storefront/internal/service/session"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	sessions  *session.Registry
	processor *orderprocessor.Processor // nil when order sync is disabled
	closers   []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	storage := postgres.NewStorage(pool)

	// Credentials live in redis if configured, otherwise in process memory
	var store session.CredentialStore
	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		store = redisstore.NewCredentialStore(client, 0)
	} else {
		l.Warn("REDIS_ADDR not set, session credentials are kept in memory")
		store = session.NewMemoryStore()
	}

	// Base gateway has no session: auth endpoints are called with explicit tokens
	gateway := commerce.NewGateway(commerce.GatewayConfig{
		BaseURL: c.CommerceAPIURL,
		Timeout: c.RequestTimeout,
	}, l)

	decoder := session.NewDecoder(session.DecoderConfig{VerifyKey: c.TokenVerifyKey})
	app.sessions = session.NewRegistry(
		session.Config{RequestTimeout: c.RequestTimeout},
		session.RegistryConfig{IdleTTL: c.SessionIdleTTL},
		store,
		commerce.NewAuthClient(gateway),
		decoder,
		l,
	)

	notifier := order.NewLogNotifier(l)

	if c.CommerceAPIKey != "" {
		serviceGateway := commerce.NewGateway(commerce.GatewayConfig{
			BaseURL: c.CommerceAPIURL,
			Timeout: c.RequestTimeout,
			APIKey:  c.CommerceAPIKey,
		}, l)
		lifecycle := order.NewLifecycle(commerce.NewClient(serviceGateway), storage, notifier, l)
		app.processor = orderprocessor.New(orderprocessor.Config{}, lifecycle, l)
	} else {
		l.Warn("COMMERCE_API_KEY not set, background order sync disabled")
	}

	app.Handler = handlers.NewRouter(handlers.Config{
		Sessions: func(sid string) reqctx.Session {
			return app.sessions.Get(sid)
		},
		Auth: commerce.NewAuthClient(gateway),
		Carts: func(s reqctx.Session) handlers.CartService {
			return cart.NewService(commerce.NewClient(gateway.WithSession(s)), l)
		},
		Orders: func(s reqctx.Session) handlers.OrderService {
			return order.NewLifecycle(commerce.NewClient(gateway.WithSession(s)), storage, notifier, l)
		},
		RequireEmailVerification: c.RequireEmailVerification,
		SecureCookies:            c.Environment == logger.EnvProduction,
	}, l)

	return app, nil
}

// Run starts http server, background order sync and session eviction; all stop gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	var processorStopped <-chan struct{}
	if s.processor != nil {
		processorStopped = s.processor.Process(srvCtx)
	}
	evictionStopped := s.sessions.RunEviction(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if s.processor != nil {
		<-processorStopped
	}
	<-evictionStopped
	s.sessions.Wait()

	return err
}

// Close releases db and redis connections; safe to call more than once
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
