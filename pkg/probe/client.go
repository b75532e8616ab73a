// Package probe measures declared service endpoints: reachability, latency
// percentiles, and protocol-specific schema validation. It also provides
// the shared outbound HTTP client the other audit phases use, so every
// external call in a run goes through one rate-limited, timeout-bounded
// transport.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one generic HTTP probe.
	DefaultTimeout = 10 * time.Second

	// maxBodySize caps protocol response bodies; agent cards and tool
	// manifests are small documents.
	maxBodySize = 1 << 20
)

// Client is the outbound HTTP port used by the audit phases: GET/HEAD with
// header access, timeout, redirect-policy control, and rate limiting
// against probed hosts.
type Client struct {
	std        *http.Client
	noRedirect *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client with the given per-request timeout (zero means
// DefaultTimeout). The limiter spreads outbound probes so a single audit
// cannot hammer an agent's infrastructure.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		std: &http.Client{Timeout: timeout},
		noRedirect: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// WithHTTPClient swaps the underlying transport; tests use this to point
// at httptest servers with their TLS config.
func (c *Client) WithHTTPClient(std *http.Client) *Client {
	c.std = std
	noRedirect := *std
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.noRedirect = &noRedirect
	return c
}

// Do issues one request. The caller owns the response body.
func (c *Client) Do(ctx context.Context, method, url string, followRedirects bool) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.std
	if !followRedirects {
		client = c.noRedirect
	}
	return client.Do(req)
}

// Head issues a HEAD request following redirects.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodHead, url, true)
}

// GetJSON fetches a URL and decodes the body as a JSON object.
func (c *Client) GetJSON(ctx context.Context, url string) (map[string]any, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("probe: GET %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("probe: read %s: %w", url, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &JSONError{URL: url, Err: err}
	}
	return raw, nil
}

// JSONError marks a response that arrived but did not parse as JSON,
// distinguishing it from transport failures.
type JSONError struct {
	URL string
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("probe: %s returned invalid JSON: %v", e.URL, e.Err)
}

func (e *JSONError) Unwrap() error { return e.Err }
