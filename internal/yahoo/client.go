package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues single, non-retried requests against the provider.
type Client struct {
	endpoints  Endpoints
	httpClient HTTPClient
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the provider base URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new provider client.
func NewClient(options ...Option) *Client {
	c := &Client{
		endpoints: DefaultEndpoints(),
		timeout:   600 * time.Second,
		userAgent: "Mozilla/5.0",
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(DefaultPool(), 0)
	}
	return c
}

// Fetch performs one request and returns the response body on HTTP 200.
// Every failure is a *FetchError whose Kind tells the caller whether a
// retry is worthwhile.
func (c *Client) Fetch(ctx context.Context, req Request) (string, error) {
	fail := func(kind Kind, err error) error {
		return &FetchError{Kind: kind, Endpoint: req.Kind, Symbol: req.Symbol, Err: err}
	}

	u, err := c.endpoints.URL(req)
	if err != nil {
		return "", fail(KindFatal, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", fail(KindFatal, fmt.Errorf("creating request: %w", err))
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("downloading", "endpoint", req.Kind.String(), "symbol", req.Symbol, "url", u)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fail(classifyTransport(ctx, err), fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fail(KindNotFound, fmt.Errorf("status %s", res.Status))
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "", fail(KindServerTransient, fmt.Errorf("server error: %s", res.Status))
	default:
		return "", fail(KindFatal, &UnclassifiedResponseError{StatusCode: res.StatusCode, Status: res.Status})
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fail(classifyTransport(ctx, err), fmt.Errorf("reading body: %w", err))
	}
	return string(body), nil
}

// classifyTransport sorts transport and body-read failures into connection
// faults and everything else. A cancelled parent context is never retried.
func classifyTransport(parent context.Context, err error) Kind {
	if parent.Err() != nil {
		return KindFatal
	}
	// *url.Error satisfies net.Error, so generic connection errors land here too.
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &netErr):
		return KindConnTransient
	}
	return KindFatal
}
