// Package render provides a client for the headless-browser rendering
// service. The portal serves its result lists and detail pages through
// anti-automation checks that plain HTTP does not pass, so all page
// fetches go through a rendering sidecar that loads the URL in a real
// browser and returns the final HTML.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bidwatch/bidcard/internal/resilience"
)

// Client defines the rendering service operations consumed by the crawl
// pipeline: fetch the rendered HTML for one URL.
type Client interface {
	Fetch(ctx context.Context, targetURL string) (string, error)
}

// renderResponse is the parsed sidecar response.
type renderResponse struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	HTML   string `json:"html"`
	Error  string `json:"error,omitempty"`
}

// Option configures the render client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a rendering service client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch renders targetURL and returns the resulting HTML. Transient
// failures (network errors, 5xx/429 from the sidecar) are retried with
// backoff; anything else fails immediately.
func (c *httpClient) Fetch(ctx context.Context, targetURL string) (string, error) {
	if targetURL == "" {
		return "", eris.New("render: empty url")
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("render.fetch", targetURL)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return c.fetchOnce(ctx, targetURL)
	})
}

func (c *httpClient) fetchOnce(ctx context.Context, targetURL string) (string, error) {
	endpoint := fmt.Sprintf("%s/render?url=%s", c.baseURL, url.QueryEscape(targetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", eris.Wrap(err, "render: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "render: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "render: read body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("render: status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var parsed renderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "render: decode response")
	}
	if parsed.Error != "" {
		return "", eris.Errorf("render: sidecar error: %s", parsed.Error)
	}
	if parsed.HTML == "" {
		return "", eris.Errorf("render: empty html for %s", targetURL)
	}

	return parsed.HTML, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
