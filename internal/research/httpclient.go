package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// maxResponseBytes bounds JSON responses read from external APIs.
const maxResponseBytes = 10 << 20

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// Name labels errors and metrics, e.g. "news-search".
	Name      string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	// MaxRetries is the number of in-process retries on 429/5xx and network
	// errors. Zero sends each request once and leaves retrying to the caller.
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string

	APIKey       string
	APIKeyHeader string
	// APIKeyPrefix is prepended to the key, e.g. "Bearer ".
	APIKeyPrefix string
}

// HTTPClient wraps http.Client with rate limiting, bounded retries and
// translation of failures into domain errors. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates an HTTPClient, filling unset fields with defaults.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Name == "" {
		cfg.Name = "external"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = max(1, int(cfg.RateLimit))
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "content-pipeline/1.0"
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Name returns the provider label.
func (c *HTTPClient) Name() string {
	return c.config.Name
}

// Do sends req, waiting on the rate limiter before every attempt. Responses
// with status 429 or 5xx and transport errors are retried up to MaxRetries
// times, honoring Retry-After. When retries run out the failure is returned
// as *domain.RateLimitError (429) or *domain.ExternalAPIError.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKeyPrefix+c.config.APIKey)
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if attempt >= c.config.MaxRetries {
				return nil, domain.NewExternalAPIError(c.config.Name, 0, "request failed", err)
			}
			if err := c.prepareRetry(req, c.config.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retryDelay(resp)
		drain(resp)
		if attempt >= c.config.MaxRetries {
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, domain.NewRateLimitError(c.config.Name, delay)
			}
			return nil, domain.NewExternalAPIError(c.config.Name, resp.StatusCode,
				fmt.Sprintf("status %d after %d attempts", resp.StatusCode, attempt+1), nil)
		}
		if err := c.prepareRetry(req, delay); err != nil {
			return nil, err
		}
	}
}

// GetJSON issues a GET and decodes a 2xx JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

// PostJSON encodes body as JSON, posts it and decodes a 2xx response into out.
// out may be nil when the response body is not needed.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *HTTPClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := CheckResponse(c.config.Name, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return domain.NewExternalAPIError(c.config.Name, resp.StatusCode, "decode response", err)
	}
	return nil
}

// CheckResponse returns nil for 2xx responses and an *domain.ExternalAPIError
// carrying a short body excerpt otherwise.
func CheckResponse(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return domain.NewExternalAPIError(name, resp.StatusCode, msg, nil)
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

// retryDelay honors Retry-After given in seconds or as an HTTP date.
func (c *HTTPClient) retryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return c.config.RetryDelay
}

func (c *HTTPClient) prepareRetry(req *http.Request, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
	}

	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("reset request body: %w", err)
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
