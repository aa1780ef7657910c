// Package shopify talks to the Shopify Admin REST API: paginated order lists
// and single order details, both routed through a retry.Controller.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"order-ingest/internal/models"
	"order-ingest/internal/retry"
	"order-ingest/internal/util"

	"go.uber.org/zap"
)

// Headers
const (
	HeaderAccessToken = "X-Shopify-Access-Token"
	HeaderCallLimit   = "X-Shopify-Shop-Api-Call-Limit"
	HeaderLink        = "Link"
	HeaderRetryAfter  = "Retry-After"
)

const (
	DefaultPageSize = 250
	DefaultTimeout  = 30 * time.Second

	maxErrorBody = 512
)

// Client is the Admin API adapter
type Client struct {
	http         *http.Client
	retry        *retry.Controller
	listPolicy   retry.Policy
	detailPolicy retry.Policy
	pageSize     int
	scheme       string
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default client (which has a DefaultTimeout)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithListPolicy overrides the list fetch retry policy
func WithListPolicy(p retry.Policy) Option {
	return func(c *Client) { c.listPolicy = p }
}

// WithDetailPolicy overrides the detail fetch retry policy
func WithDetailPolicy(p retry.Policy) Option {
	return func(c *Client) { c.detailPolicy = p }
}

// WithPageSize overrides the list page size
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithScheme overrides the URL scheme, "https" by default
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// NewClient creates a new Admin API client
func NewClient(controller *retry.Controller, opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: DefaultTimeout},
		retry:        controller,
		listPolicy:   retry.ListPolicy(),
		detailPolicy: retry.DetailPolicy(),
		pageSize:     DefaultPageSize,
		scheme:       "https",
		now:          time.Now,
		logger:       util.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues one authenticated GET and decodes a 2xx body into out.
// Non-2xx responses come back as *retry.StatusError.
func (c *Client) get(ctx context.Context, auth models.ShopAuth, rawURL, operation string, out interface{}) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set(HeaderAccessToken, auth.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	util.RemoteCallLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.Header, &retry.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get(HeaderRetryAfter), c.now()),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return resp.Header, nil
}

func (c *Client) baseURL(auth models.ShopAuth) string {
	return fmt.Sprintf("%s://%s/admin/api/%s", c.scheme, auth.StoreDomain, auth.APIVersion)
}
