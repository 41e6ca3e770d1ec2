package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Base URLs for the REST API.
const (
	DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	DemoBaseURL    = "https://demo-api.kalshi.co/trade-api/v2"
)

// Signer produces Kalshi authentication headers for a request.
// *auth.Credentials satisfies it.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// Client provides access to the Kalshi REST API.
type Client struct {
	baseURL    string
	basePath   string // path prefix of baseURL, part of every signed path
	signer     Signer
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. A nil signer sends
// unauthenticated requests, which is enough for market data.
func NewClient(baseURL string, signer Signer, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{
		baseURL: baseURL,
		signer:  signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}
	if u, err := url.Parse(baseURL); err == nil {
		c.basePath = u.Path
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration for idempotent requests.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
