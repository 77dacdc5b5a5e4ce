// Package upstream is a small client for the hosted storefront data service, a
// PostgREST-style REST endpoint (GET /rest/v1/<table>?select=...).
//
// The client does not retry: the fetch controller owns retries so that a
// superseded fetch stops retrying with it.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	rlog "github.com/unkn0wn-root/resfetch/log"
)

const (
	restPrefix      = "/rest/v1/"
	defaultTimeout  = 30 * time.Second
	defaultMaxBody  = 8 << 20
	maxErrorBody    = 512
	requestIDHeader = "X-Request-ID"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAPIKey sends key as both the apikey header and a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds a single request when the HTTP client has no timeout of
// its own. 0 keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeaders adds default headers to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithMaxBody caps the bytes read from a response.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func WithLogger(l rlog.Logger) Option {
	return func(c *Client) { c.log = rlog.OrNop(l) }
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
	apiKey     string
	timeout    time.Duration
	maxBody    int64
	log        rlog.Logger
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("upstream: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q", parsed.Scheme)
	}

	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		headers:    make(http.Header),
		timeout:    defaultTimeout,
		maxBody:    defaultMaxBody,
		log:        rlog.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = c.timeout
	}
	return c, nil
}

// Query is a PostgREST read: column selection, equality filters, ordering
// and a row limit.
type Query struct {
	Select string            // "" => "*"
	Eq     map[string]string // column => value
	Order  string            // e.g. "name.asc"
	Limit  int
}

func (q Query) Values() url.Values {
	v := url.Values{}
	sel := q.Select
	if sel == "" {
		sel = "*"
	}
	v.Set("select", sel)
	for col, val := range q.Eq {
		v.Set(col, "eq."+val)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Get performs GET path?query and returns the body of a 2xx response. Non-2xx
// responses return *StatusError; transport failures are returned as is.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := c.buildURL(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header = cloneHeader(c.headers)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("upstream request failed", rlog.Fields{"path": path, "request_id": reqID, "err": err})
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}
	c.log.Debug("upstream request", rlog.Fields{
		"path": path, "status": resp.StatusCode, "bytes": len(body),
		"elapsed": time.Since(start), "request_id": reqID,
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Status:    resp.StatusCode,
			Body:      body,
			Header:    resp.Header.Clone(),
			RequestID: reqID,
		}
	}
	return body, nil
}

// Table reads rows of table with q.
func (c *Client) Table(ctx context.Context, table string, q Query) ([]byte, error) {
	return c.Get(ctx, restPrefix+table, q.Values())
}

// GetJSON is Get followed by decoding into T. Decode failures wrap ErrDecode.
func GetJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		// %v: a truncated payload must not look like a transport EOF
		return out, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return out, nil
}

// Rows is GetJSON over Table.
func Rows[T any](ctx context.Context, c *Client, table string, q Query) ([]T, error) {
	return GetJSON[[]T](ctx, c, restPrefix+table, q.Values())
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		vCopy := make([]string, len(values))
		copy(vCopy, values)
		dst[k] = vCopy
	}
	return dst
}
