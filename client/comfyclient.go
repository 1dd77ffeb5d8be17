package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
)

// RetryPolicy bounds the retries of an idempotent GET. Network failures and
// 5xx responses are retried; other statuses fail immediately.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

var (
	DefaultRetry = RetryPolicy{Retries: 2, Delay: 300 * time.Millisecond}
	ListingRetry = RetryPolicy{Retries: 1, Delay: 300 * time.Millisecond}
	HistoryRetry = RetryPolicy{Retries: 2, Delay: 500 * time.Millisecond}
	ViewRetry    = RetryPolicy{Retries: 2, Delay: 300 * time.Millisecond}
)

// RequestObserver receives one call per HTTP attempt. Status is 0 when the
// request failed before a response arrived.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	ObserveRetry(method, route string)
}

// ComfyClient talks to the HTTP control surface of a ComfyUI server.
type ComfyClient struct {
	baseURL    string
	httpclient *http.Client
	logger     *slog.Logger
	observer   RequestObserver
}

type Option func(*ComfyClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *ComfyClient) { c.httpclient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *ComfyClient) { c.logger = l }
}

func WithObserver(o RequestObserver) Option {
	return func(c *ComfyClient) { c.observer = o }
}

// NewComfyClient creates a client for baseURL, e.g. http://127.0.0.1:8188.
func NewComfyClient(baseURL string, opts ...Option) *ComfyClient {
	c := &ComfyClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpclient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address without a trailing slash.
func (c *ComfyClient) BaseURL() string {
	return c.baseURL
}

// return the underlying http client
func (c *ComfyClient) HttpClient() *http.Client {
	return c.httpclient
}

// GetJSON fetches path and decodes the response body into a generic value.
func (c *ComfyClient) GetJSON(ctx context.Context, path string, policy RetryPolicy) (any, error) {
	body, err := c.get(ctx, path, policy)
	if err != nil {
		return nil, err
	}
	var v any
	if err := xjson.Unmarshal(body, &v); err != nil {
		return nil, comfyerr.Newf(comfyerr.APIError, "GET %s returned invalid JSON", path).
			WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
	}
	return v, nil
}

// getInto fetches path and decodes the response body into out.
func (c *ComfyClient) getInto(ctx context.Context, path string, policy RetryPolicy, out any) error {
	body, err := c.get(ctx, path, policy)
	if err != nil {
		return err
	}
	if err := xjson.Unmarshal(body, out); err != nil {
		return comfyerr.Newf(comfyerr.APIError, "GET %s returned invalid JSON", path).
			WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
	}
	return nil
}

func (c *ComfyClient) get(ctx context.Context, path string, policy RetryPolicy) ([]byte, error) {
	route := routeOf(path)
	for attempt := 0; ; attempt++ {
		body, status, err := c.do(ctx, http.MethodGet, path, nil, "")
		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}

		retryable := err != nil || status >= 500
		if retryable && attempt < policy.Retries && ctx.Err() == nil {
			c.logger.Debug("retrying request", "method", http.MethodGet, "path", path, "attempt", attempt+1, "status", status, "error", err)
			if c.observer != nil {
				c.observer.ObserveRetry(http.MethodGet, route)
			}
			if werr := sleepContext(ctx, policy.Delay); werr != nil {
				return nil, networkError(http.MethodGet, path, werr)
			}
			continue
		}

		if err != nil {
			return nil, networkError(http.MethodGet, path, err)
		}
		return nil, statusError(http.MethodGet, path, status)
	}
}

// PostJSON sends body as JSON and decodes the response into out. POSTs are never retried.
func (c *ComfyClient) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := xjson.Marshal(body)
	if err != nil {
		return err
	}
	return c.post(ctx, path, bytes.NewReader(data), "application/json", out)
}

func (c *ComfyClient) post(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	resp, status, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return networkError(http.MethodPost, path, err)
	}
	if status < 200 || status >= 300 {
		return statusError(http.MethodPost, path, status)
	}
	if out == nil {
		return nil
	}
	if err := xjson.Unmarshal(resp, out); err != nil {
		return comfyerr.Newf(comfyerr.APIError, "POST %s returned invalid JSON", path).
			WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
	}
	return nil
}

func (c *ComfyClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		c.observe(method, path, 0, start)
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, path, resp.StatusCode, start)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

func (c *ComfyClient) observe(method, path string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, routeOf(path), status, time.Since(start))
	}
}

func networkError(method, path string, err error) error {
	return comfyerr.Newf(comfyerr.APIError, "%s %s failed: network error", method, path).
		WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
}

func statusError(method, path string, status int) error {
	return comfyerr.Newf(comfyerr.APIError, "%s %s failed with status %d", method, path, status).
		WithDetails(map[string]any{"status": status})
}

// IsStatus reports whether err is an API error carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	ce, ok := comfyerr.As(err)
	if !ok || ce.Code != comfyerr.APIError {
		return false
	}
	s, _ := ce.Details["status"].(int)
	return s == status
}

// StatusOf returns the HTTP status carried by an API error, or 0.
func StatusOf(err error) int {
	ce, ok := comfyerr.As(err)
	if !ok {
		return 0
	}
	s, _ := ce.Details["status"].(int)
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// routeOf reduces a request path to a low-cardinality label: the first path
// segment, or the first two when the first is "api".
func routeOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	if (parts[0] == "api" || parts[0] == "upload") && len(parts) > 1 {
		return "/" + parts[0] + "/" + parts[1]
	}
	return "/" + parts[0]
}
