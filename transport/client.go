package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const RequestIDHeader = "X-Request-Id"

var ErrNoEndpoint = errors.New("transport: graphql endpoint is not configured")

// Client posts operations to the single GraphQL endpoint. It retries
// connection failures and 5xx responses; authentication is the caller's
// concern (see Authenticated).
type Client struct {
	url     string
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

type Option func(*Client)

// WithMaxRetries overrides the configured retry count.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

// WithHTTPClient replaces the pooled client, e.g. with an httptest client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func New(url string, cfg config.TransportConfig, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrNoEndpoint
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.GetClientTimeout()
	if cfg.GetTracingEnabled() {
		hc.Transport = otelhttp.NewTransport(hc.Transport)
	}

	rc := &retryablehttp.Client{
		HTTPClient:   hc,
		Logger:       logging.NewRetryableLogger("transport"),
		RetryWaitMin: cfg.GetRetryWaitMin(),
		RetryWaitMax: cfg.GetRetryWaitMax(),
		RetryMax:     cfg.GetMaxRetries(),
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.RateLimitLinearJitterBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	c := &Client{url: url, http: rc}
	if limit := cfg.GetRateLimit(); limit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(limit), max(cfg.GetRateBurst(), 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

// DoWithBearer sends req once (plus transport level retries) with the given
// credential. No token refresh happens here.
func (c *Client) DoWithBearer(ctx context.Context, req *http.Request, bearer string) (*http.Response, error) {
	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("transport: prepare request: %w", err)
	}
	return c.send(ctx, rreq, bearer)
}

// Post runs a GraphQL operation with an explicit bearer (empty for none) and
// returns the decoded data object.
func (c *Client) Post(ctx context.Context, query string, variables map[string]any, bearer string) (json.RawMessage, error) {
	req, err := graphql.NewRequest(ctx, c.url, query, variables)
	if err != nil {
		return nil, err
	}
	resp, err := c.DoWithBearer(ctx, req, bearer)
	if err != nil {
		return nil, err
	}
	return graphql.ReadData(resp)
}

func (c *Client) send(ctx context.Context, rreq *retryablehttp.Request, bearer string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transport: rate limit: %w", err)
		}
	}
	if bearer != "" {
		rreq.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		rreq.Header.Del("Authorization")
	}
	rreq.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(rreq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", rreq.Method, rreq.URL.Redacted(), err)
	}
	return resp, nil
}
