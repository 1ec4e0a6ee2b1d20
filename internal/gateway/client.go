package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/greenmarket/storefront/internal/metrics"
	"github.com/greenmarket/storefront/pkg/logger"
)

// Config holds gateway client configuration.
type Config struct {
	// URL is the hosted project URL, e.g. https://xyz.supabase.co.
	URL string
	// AnonKey is sent as the API key on every request.
	AnonKey string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// RequestsPerSecond caps the outbound request rate; 0 disables the cap.
	RequestsPerSecond float64
}

// Client talks to the hosted backend. Sub-clients cover auth and realtime;
// Table starts a query against the data API.
type Client struct {
	baseURL     string
	restURL     string
	authURL     string
	realtimeURL string
	anonKey     string

	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger

	auth     *AuthClient
	realtime *RealtimeClient
}

// New creates a gateway client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("gateway anon key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("gateway")
	}

	base := strings.TrimRight(cfg.URL, "/")
	wsURL := base
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	c := &Client{
		baseURL:     base,
		restURL:     base + "/rest/v1",
		authURL:     base + "/auth/v1",
		realtimeURL: wsURL + "/realtime/v1/websocket?apikey=" + url.QueryEscape(cfg.AnonKey) + "&vsn=1.0.0",
		anonKey:     cfg.AnonKey,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     limiter,
		log:         log,
	}
	c.auth = &AuthClient{client: c}
	c.realtime = newRealtimeClient(c)
	return c, nil
}

// Auth returns the auth sub-client.
func (c *Client) Auth() *AuthClient { return c.auth }

// Realtime returns the realtime sub-client.
func (c *Client) Realtime() *RealtimeClient { return c.realtime }

// Table starts a query against a table.
func (c *Client) Table(name string) *Query {
	return &Query{
		client:  c,
		table:   name,
		method:  http.MethodGet,
		columns: "*",
		headers: make(map[string]string),
	}
}

// Close releases the realtime connection, if any.
func (c *Client) Close() error {
	return c.realtime.Close()
}

// do executes a request against the backend. The bearer token is the
// session token from ctx when present, else the anon key. The table label
// is only used for metrics.
func (c *Client) do(ctx context.Context, method, rawURL, table string, body []byte, headers map[string]string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	token := c.anonKey
	if t := AccessTokenFromContext(ctx); t != "" {
		token = t
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveGatewayRequest(method, table, "error", time.Since(start))
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ObserveGatewayRequest(method, table, "error", time.Since(start))
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	metrics.ObserveGatewayRequest(method, table, strconv.Itoa(resp.StatusCode), time.Since(start))
	return respBody, resp.StatusCode, nil
}

const maxResponseBytes = 8 << 20 // 8 MiB

// =============================================================================
// Access token context
// =============================================================================

type tokenCtxKey struct{}

// WithAccessToken returns a context carrying a session access token. Gateway
// requests made with it run under that user's row-level permissions.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// AccessTokenFromContext extracts the session token, if any.
func AccessTokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tokenCtxKey{}).(string); ok {
		return t
	}
	return ""
}
