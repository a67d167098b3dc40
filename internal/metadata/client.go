package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/assaykit/assaykit/internal/cache"
	"github.com/assaykit/assaykit/internal/table"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client is a metadata API client. GET responses are memoized in its cache.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	cache  cache.Cache
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache memoizes GET responses in c.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithHTTPClient replaces the HTTP client. Its timeout is left as is.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// NewClient builds a client for cfg. The API key is required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	raw, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.URL = raw

	c := &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  cache.Nop{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path ...string) *url.URL {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		for _, seg := range strings.Split(p, "/") {
			if seg != "" {
				parts = append(parts, seg)
			}
		}
	}
	return c.base.ResolveReference(&url.URL{Path: strings.Join(parts, "/")})
}

// Find GETs endpoint with filter and returns the raw JSON body.
func (c *Client) Find(ctx context.Context, endpoint string, filter *Filter) ([]byte, error) {
	u := c.endpoint(endpoint)
	if !filter.Empty() {
		enc, err := filter.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		q := u.Query()
		q.Set("filter", enc)
		u.RawQuery = q.Encode()
	}

	key := cache.RequestKey(http.MethodGet, u, c.cfg.APIKey, c.cfg.PrismKey)
	if body, err := c.cache.Get(ctx, key); err == nil {
		c.logger.Debug("metadata cache hit", zap.String("url", u.String()))
		return body, nil
	} else if !cache.IsMiss(err) {
		c.logger.Warn("metadata cache read failed", zap.Error(err))
	}

	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, body, 0); err != nil {
		c.logger.Warn("metadata cache write failed", zap.Error(err))
	}
	return body, nil
}

// Table GETs endpoint and decodes the JSON array of records.
func (c *Client) Table(ctx context.Context, endpoint string, filter *Filter) (*table.Table, error) {
	body, err := c.Find(ctx, endpoint, filter)
	if err != nil {
		return nil, err
	}
	t, err := table.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return t, nil
}

// Post sends body as JSON and returns the response body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	return c.send(ctx, http.MethodPost, c.endpoint(endpoint), body)
}

// Put sends body as JSON and returns the response body.
func (c *Client) Put(ctx context.Context, endpoint string, body any) ([]byte, error) {
	return c.send(ctx, http.MethodPut, c.endpoint(endpoint), body)
}

// Delete removes the resource at endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string) error {
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(endpoint), nil)
	return err
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, method, u, payload)
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("user_key", c.cfg.APIKey)
	if c.cfg.PrismKey != "" {
		req.Header.Set("prism_key", c.cfg.PrismKey)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("metadata request", zap.String("method", method), zap.String("url", u.String()))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", u.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			URL:        u.Redacted(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
