package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerOpenDelay = 30 * time.Second
	maxBodySize             = 1 << 20

	apiKeyHeader = "X-Api-Key"
)

// Session as the gateway sees it
type Session interface {
	EnsureValid(ctx context.Context) (models.Credentials, error)
	Revoke(ctx context.Context) error
}

type GatewayConfig struct {
	// Base url of the commerce API, e.g. http://localhost:8080/api
	BaseURL string

	// Bound for every call
	// If not set than default is used
	Timeout time.Duration

	// Sent with every request if set; used by background jobs without session
	APIKey string

	// Consecutive transport failures to open the breaker and how long it stays open
	// If not set than default is used
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration

	// If not set than a new client is used
	HTTPClient *http.Client
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Explicit access token, session is not consulted when set
	Token string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Gateway sends requests to the commerce API on behalf of a session
type Gateway struct {
	baseURL string
	timeout time.Duration
	apiKey  string

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	session Session
	logger  logger.Logger
}

func NewGateway(cfg GatewayConfig, l logger.Logger) *Gateway {
	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.Timeout, defaultTimeout)
	setDefaultDuration(&cfg.BreakerOpenDelay, defaultBreakerOpenDelay)

	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	l = l.With("component", "commerce_gateway")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "commerce-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		breaker: breaker,
		logger:  l,
	}
}

// WithSession returns gateway sending requests on behalf of the session
// Breaker and http client are shared with the parent
func (g *Gateway) WithSession(s Session) *Gateway {
	cp := *g
	cp.session = s
	return &cp
}

// Send performs request once, no retries
// 2xx returns response; anything else is *APIError
// 401 revokes the session before the error is returned
func (g *Gateway) Send(ctx context.Context, r Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := g.breaker.Execute(func() (*Response, error) {
		return g.do(req)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, transportError(err)
	case err != nil:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, transportError(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := decodeAPIError(resp.StatusCode, resp.Header, resp.Body)
	g.logger.Debug("Commerce API error", "method", req.Method, "path", req.URL.Path, "kind", apiErr.Kind, "status_code", resp.StatusCode)

	if apiErr.Kind == KindUnauthorized && g.session != nil {
		if err := g.session.Revoke(ctx); err != nil {
			g.logger.Error("Failed to revoke session after 401", "error", err)
		}
	}

	return nil, apiErr
}

// Network failures and 5xx count against the breaker; 4xx are caller problems and do not
func (g *Gateway) do(req *http.Request) (*Response, error) {
	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer httpResp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	if httpResp.StatusCode >= 500 {
		return resp, decodeAPIError(resp.StatusCode, resp.Header, resp.Body)
	}
	return resp, nil
}

func (g *Gateway) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	u := g.baseURL + NormalizePath(r.Path)
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set(apiKeyHeader, g.apiKey)
	}

	// Public endpoints work without credentials, so a failed session is not an error here
	switch {
	case r.Token != "":
		req.Header.Set("Authorization", "Bearer "+r.Token)
	case g.session != nil:
		if creds, err := g.session.EnsureValid(ctx); err == nil {
			req.Header.Set("Authorization", "Bearer "+creds.Access)
		}
	}

	return req, nil
}

// NormalizePath makes path start and end with a single slash
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}
