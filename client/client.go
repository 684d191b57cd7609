// Package client is the REST client for the shop API. It implements
// shopcache.Backend and session.Authenticator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/shopcache"
)

// RequestIDHeader carries a fresh uuid on every request.
const RequestIDHeader = "X-Request-ID"

// TokenSource returns the bearer token to send, or "" for none.
type TokenSource func() string

type Client struct {
	base      *url.URL
	http      *http.Client
	token     TokenSource
	log       shopcache.Logger
	userAgent string
}

var _ shopcache.Backend = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient. The client sets no timeout of
// its own; bound requests with the context or hc.Timeout.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.token = ts } }

func WithLogger(l shopcache.Logger) Option { return func(c *Client) { c.log = l } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "shop api: parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("shop api: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:      u,
		http:      http.DefaultClient,
		log:       shopcache.NopLogger{},
		userAgent: "shopcache-client",
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.log == nil {
		c.log = shopcache.NopLogger{}
	}
	return c, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	token       string // overrides the TokenSource when set
}

// endpoint joins the escaped path p to the base URL; escapes in p survive.
func (c *Client) endpoint(p string, q url.Values) string {
	u := c.base.JoinPath(p)
	u.RawQuery = q.Encode()
	return u.String()
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "shop api: encode payload")
	}
	return bytes.NewReader(b), nil
}

// do sends r and decodes a 2xx JSON response into out. Non-2xx responses
// become *Error; transport failures are wrapped with method and URL and keep
// their cause for errors.Is.
func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.endpoint(r.path, r.query)
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return errors.Wrapf(err, "shop api: build %s %s", r.method, target)
	}

	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	token := r.token
	if token == "" && c.token != nil {
		token = c.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", shopcache.Fields{"method": r.method, "url": target, "request_id": reqID, "err": err})
		return errors.Wrapf(err, "shop api: %s %s", r.method, target)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "shop api: read %s %s", r.method, target)
	}
	c.log.Debug("request done", shopcache.Fields{
		"method":      r.method,
		"url":         target,
		"status":      resp.StatusCode,
		"request_id":  reqID,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(r.method, target, resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "shop api: decode %s %s", r.method, target)
	}
	return nil
}
